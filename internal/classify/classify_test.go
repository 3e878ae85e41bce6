package classify

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

const hex32 = "abcdef0123456789abcdef0123456789"

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		secondary string
		want      Backend
		wantErr   bool
	}{
		{
			name:      "two arguments always mean zlib",
			primary:   "1234567",
			secondary: "a1b2c3",
			want:      Zlib,
		},
		{
			name:    "calibre acquisition url",
			primary: "http://127.0.0.1:8083/opds/download/42/epub/",
			want:    Calibre,
		},
		{
			name:    "archive download url",
			primary: "https://archive.org/download/some-item/book.epub",
			want:    Archive,
		},
		{
			name:    "liber3 tagged id",
			primary: "L" + hex32,
			want:    Liber3,
		},
		{
			name:    "annas tagged id",
			primary: "A" + hex32,
			want:    Annas,
		},
		{
			name:    "unregistered prefix is rejected, not guessed",
			primary: "X" + hex32,
			wantErr: true,
		},
		{
			name:    "plain hex without prefix is rejected",
			primary: hex32,
			wantErr: true,
		},
		{
			name:    "empty input",
			primary: "",
			wantErr: true,
		},
		{
			name:    "random url is rejected",
			primary: "https://example.org/some/file.epub",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.primary, tt.secondary)
			if tt.wantErr {
				assert.IsError(t, err, ErrUnrecognized)
				assert.Equal(t, Unknown, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLRuleBeatsIDShape(t *testing.T) {
	// A URL whose last path segment happens to look like a tagged hex ID
	// must still route to the URL-based backend.
	u := "http://books.local/opds/download/L" + hex32 + "/x/"
	got, err := Classify(u, "")
	assert.NoError(t, err)
	assert.Equal(t, Calibre, got)
}

func TestIsZlibPair(t *testing.T) {
	assert.True(t, IsZlibPair("12345", "a1b2c3"))
	assert.True(t, IsZlibPair("12345", "A1B2C3"))
	assert.False(t, IsZlibPair("12a45", "a1b2c3"))
	assert.False(t, IsZlibPair("12345", "a1b2c"))
	assert.False(t, IsZlibPair("", "a1b2c3"))
}

func TestTaggedIDStripsPrefix(t *testing.T) {
	owner, id := TaggedID("L" + hex32)
	assert.Equal(t, Liber3, owner)
	assert.Equal(t, hex32, id)

	owner, id = TaggedID("L" + strings.ToUpper(hex32))
	assert.Equal(t, Liber3, owner)
	assert.Equal(t, strings.ToUpper(hex32), id)

	owner, _ = TaggedID("L" + hex32[:31])
	assert.Equal(t, Unknown, owner)
}

func TestIsCalibreURL(t *testing.T) {
	assert.True(t, IsCalibreURL("https://books.example.org/opds/download/9/mobi/"))
	assert.False(t, IsCalibreURL("https://books.example.org/opds/cover/9"))
	assert.False(t, IsCalibreURL("ftp://books.example.org/opds/download/9/mobi/"))
	assert.False(t, IsCalibreURL(""))
}

func TestIsArchiveURL(t *testing.T) {
	assert.True(t, IsArchiveURL("https://archive.org/download/item/file.pdf"))
	assert.False(t, IsArchiveURL("http://archive.org/download/item/file.pdf"))
	assert.False(t, IsArchiveURL("https://archive.org/download/item/extra/file.pdf"))
	assert.False(t, IsArchiveURL("https://archive.org/details/item"))
}
