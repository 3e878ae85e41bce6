package book

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DescriptionLimit is the hard cap applied to normalized descriptions.
const DescriptionLimit = 150

// Ellipsis marks a truncated description.
const Ellipsis = "..."

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	yearPattern       = regexp.MustCompile(`^\d{4}`)
)

// CleanDescription normalizes a raw description from any backend: strips
// markup when present, collapses whitespace and truncates to DescriptionLimit
// runes. Empty input (or input that is empty after stripping) degrades to the
// no-description placeholder. The function is idempotent: feeding it its own
// output is a no-op.
func CleanDescription(raw string) string {
	text := strings.TrimSpace(raw)
	if looksLikeHTML(text) {
		text = stripHTML(text)
	}
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	if text == "" {
		return PlaceholderNoDescription
	}
	runes := []rune(text)
	if len(runes) > DescriptionLimit {
		return string(runes[:DescriptionLimit]) + Ellipsis
	}
	return text
}

// looksLikeHTML does a lightweight structural check for markup. Anything with
// a <tag>-shaped substring goes through the full parser.
func looksLikeHTML(s string) bool {
	return tagPattern.MatchString(s)
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		// Parser refused the input; fall back to dropping tag-shaped runs.
		return tagPattern.ReplaceAllString(s, " ")
	}
	return doc.Text()
}

// YearFromDate extracts a 4-digit year from either a full ISO-8601 date/time
// string or a longer date string with a leading year. Unparseable input
// yields the unknown placeholder, never an error.
func YearFromDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PlaceholderUnknown
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006")
		}
	}
	if m := yearPattern.FindString(raw); m != "" {
		return m
	}
	return PlaceholderUnknown
}

// JoinAuthors comma-joins a backend's author list, dropping empty names.
func JoinAuthors(names []string) string {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return PlaceholderUnknown
	}
	return strings.Join(kept, ", ")
}

// TruncateFilename shortens over-long filenames while keeping the extension,
// marking the elision so the user can tell the name was cut.
func TruncateFilename(name string, maxBytes int) string {
	if len(name) <= maxBytes {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	const marker = "…"
	keep := maxBytes - len(ext) - len(marker)
	if keep < 1 {
		keep = 1
	}
	runes := []rune(base)
	for len(string(runes)) > keep && len(runes) > 1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + marker + ext
}
