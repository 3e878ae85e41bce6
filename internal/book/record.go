// Package book defines the canonical record shape shared by every backend
// and the normalization helpers that fill it.
package book

import (
	"fmt"
	"strings"
)

// Placeholder values. Every Record field is filled with one of these when the
// backend response is missing or malformed; a normalized record never carries
// an empty required field.
const (
	PlaceholderUnknown       = "Unknown"
	PlaceholderNoDescription = "No description"
)

// RefKind tells which download mechanism a record's reference resolves to.
type RefKind int

const (
	// RefNone means the backend gave us nothing usable for download.
	RefNone RefKind = iota
	// RefURL is a directly fetchable URL.
	RefURL
	// RefIDHash is a numeric ID plus content hash pair (Z-Library).
	RefIDHash
	// RefTagged is a one-letter backend marker followed by a 32-char hex ID.
	RefTagged
)

// DownloadRef is the per-backend download reference carried by a Record.
// Exactly one shape is populated; Display renders the user-visible form that
// the identifier classifier later maps back to the owning backend.
type DownloadRef struct {
	Kind RefKind
	URL  string
	ID   string
	Hash string
	Tag  byte
}

// Display returns the string a user pastes back into a download command.
func (r DownloadRef) Display() string {
	switch r.Kind {
	case RefURL:
		return r.URL
	case RefIDHash:
		if r.Hash != "" {
			return fmt.Sprintf("%s %s", r.ID, r.Hash)
		}
		return r.ID
	case RefTagged:
		return string(r.Tag) + r.ID
	default:
		return PlaceholderUnknown
	}
}

// Record is the canonical, backend-agnostic representation of one book.
// Records are assembled once per raw search hit and never mutated afterwards.
type Record struct {
	Title       string
	Authors     string
	Publisher   string
	Year        string
	Language    string
	Description string
	CoverURL    string
	Download    DownloadRef
	Format      string
	Size        string
}

// Fill replaces every empty text field with its placeholder so callers can
// render a record without nil/empty checks.
func (r Record) Fill() Record {
	r.Title = OrPlaceholder(r.Title)
	r.Authors = OrPlaceholder(r.Authors)
	r.Publisher = OrPlaceholder(r.Publisher)
	r.Year = OrPlaceholder(r.Year)
	r.Language = OrPlaceholder(r.Language)
	r.Format = OrPlaceholder(r.Format)
	r.Size = OrPlaceholder(r.Size)
	if strings.TrimSpace(r.Description) == "" {
		r.Description = PlaceholderNoDescription
	}
	return r
}

// OrPlaceholder returns s trimmed, or the unknown placeholder when s is
// empty. The literal "None" shows up as a value in some backend payloads and
// counts as absent.
func OrPlaceholder(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return PlaceholderUnknown
	}
	return s
}
