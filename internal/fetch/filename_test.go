package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{
			name:     "rfc5987 extended form",
			header:   `attachment; filename*=UTF-8''The%20Dispossessed.epub`,
			expected: "The Dispossessed.epub",
		},
		{
			name:     "extended form preferred over bare",
			header:   `attachment; filename="fallback.epub"; filename*=UTF-8''real.epub`,
			expected: "real.epub",
		},
		{
			name:     "bare quoted form",
			header:   `attachment; filename="plain.pdf"`,
			expected: "plain.pdf",
		},
		{
			name:     "bare unquoted form",
			header:   `attachment; filename=plain.pdf`,
			expected: "plain.pdf",
		},
		{
			name:     "no filename at all",
			header:   `inline`,
			expected: "",
		},
		{
			name:     "extended form with encoded traversal",
			header:   `attachment; filename*=UTF-8''..%2F..%2Fpwn.epub`,
			expected: "pwn.epub",
		},
		{
			name:     "bare form with traversal",
			header:   `attachment; filename="../../evil.epub"`,
			expected: "evil.epub",
		},
		{
			name:     "backslash separators",
			header:   `attachment; filename="..\..\evil.epub"`,
			expected: "evil.epub",
		},
		{
			name:     "filename is only a traversal segment",
			header:   `attachment; filename=".."`,
			expected: "",
		},
		{
			name:     "empty header",
			header:   "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FilenameFromDisposition(tt.header))
		})
	}
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "item.epub", FilenameFromURL("https://archive.org/download/item-id/item.epub", "fallback"))
	assert.Equal(t, "with space.pdf", FilenameFromURL("https://example.org/a/with%20space.pdf", "fallback"))
	assert.Equal(t, "fallback", FilenameFromURL("https://example.org/", "fallback"))
	assert.Equal(t, "fallback", FilenameFromURL("://bad", "fallback"))
	assert.Equal(t, "pwn.epub", FilenameFromURL("https://example.org/d/..%2F..%2Fpwn.epub", "fallback"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "plain name untouched", in: "book.epub", expected: "book.epub"},
		{name: "slash traversal stripped", in: "../../pwn.epub", expected: "pwn.epub"},
		{name: "backslash traversal stripped", in: `..\..\pwn.epub`, expected: "pwn.epub"},
		{name: "absolute path reduced to base", in: "/etc/passwd", expected: "passwd"},
		{name: "dot-dot alone rejected", in: "..", expected: ""},
		{name: "dot alone rejected", in: ".", expected: ""},
		{name: "empty rejected", in: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.in))
		})
	}
}
