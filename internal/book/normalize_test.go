package book

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text passes through trimmed",
			input:    "  A short description.  ",
			expected: "A short description.",
		},
		{
			name:     "html is stripped and collapsed",
			input:    "<p>First   line</p>\n<p>Second <b>line</b></p>",
			expected: "First line Second line",
		},
		{
			name:     "empty input becomes placeholder",
			input:    "",
			expected: PlaceholderNoDescription,
		},
		{
			name:     "html that strips to nothing becomes placeholder",
			input:    "<div><span>   </span></div>",
			expected: PlaceholderNoDescription,
		},
		{
			name:     "angle bracket math is not html",
			input:    "for all x < y and y > z",
			expected: "for all x < y and y > z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanDescription(tt.input))
		})
	}
}

func TestCleanDescriptionTruncation(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := CleanDescription(long)
	assert.Equal(t, 150+len(Ellipsis), len(got))
	assert.True(t, strings.HasSuffix(got, Ellipsis))

	exact := strings.Repeat("b", 150)
	assert.Equal(t, exact, CleanDescription(exact))
}

func TestCleanDescriptionIdempotent(t *testing.T) {
	inputs := []string{
		strings.Repeat("x", 300),
		"<p>some <i>rich</i> description text</p>",
		"plain and short",
		"",
	}
	for _, in := range inputs {
		once := CleanDescription(in)
		assert.Equal(t, once, CleanDescription(once))
	}
}

func TestYearFromDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2019-07-01T10:30:00Z", "2019"},
		{"2019-07-01T10:30:00", "2019"},
		{"2019-07-01", "2019"},
		{"1987 first edition", "1987"},
		{"not a date", PlaceholderUnknown},
		{"", PlaceholderUnknown},
		{"99", PlaceholderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, YearFromDate(tt.input))
		})
	}
}

func TestJoinAuthors(t *testing.T) {
	assert.Equal(t, "Ann Leckie, Ursula K. Le Guin", JoinAuthors([]string{"Ann Leckie", " Ursula K. Le Guin "}))
	assert.Equal(t, "Solo", JoinAuthors([]string{"", "Solo", "  "}))
	assert.Equal(t, PlaceholderUnknown, JoinAuthors(nil))
}

func TestFillNeverLeavesEmptyFields(t *testing.T) {
	r := Record{Title: "Dune"}.Fill()
	assert.Equal(t, "Dune", r.Title)
	assert.Equal(t, PlaceholderUnknown, r.Authors)
	assert.Equal(t, PlaceholderUnknown, r.Publisher)
	assert.Equal(t, PlaceholderUnknown, r.Year)
	assert.Equal(t, PlaceholderUnknown, r.Language)
	assert.Equal(t, PlaceholderNoDescription, r.Description)
	assert.Equal(t, PlaceholderUnknown, r.Format)
	assert.Equal(t, PlaceholderUnknown, r.Size)
}

func TestFillTreatsLiteralNoneAsAbsent(t *testing.T) {
	r := Record{Publisher: "None"}.Fill()
	assert.Equal(t, PlaceholderUnknown, r.Publisher)
}

func TestTruncateFilename(t *testing.T) {
	assert.Equal(t, "short.epub", TruncateFilename("short.epub", 100))

	long := strings.Repeat("name", 40) + ".pdf"
	got := TruncateFilename(long, 100)
	assert.True(t, len(got) <= 100)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
	assert.True(t, strings.Contains(got, "…"))
}

func TestDownloadRefDisplay(t *testing.T) {
	assert.Equal(t, "https://example.org/opds/download/1/epub/", DownloadRef{Kind: RefURL, URL: "https://example.org/opds/download/1/epub/"}.Display())
	assert.Equal(t, "12345 a1b2c3", DownloadRef{Kind: RefIDHash, ID: "12345", Hash: "a1b2c3"}.Display())
	assert.Equal(t, "Ldeadbeef", DownloadRef{Kind: RefTagged, Tag: 'L', ID: "deadbeef"}.Display())
	assert.Equal(t, PlaceholderUnknown, DownloadRef{}.Display())
}
