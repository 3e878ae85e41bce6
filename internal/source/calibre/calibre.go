// Package calibre queries a self-hosted Calibre-Web style OPDS catalog.
package calibre

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed/atom"

	"bookferry/internal/book"
	"bookferry/internal/classify"
	"bookferry/internal/fetch"
	"bookferry/internal/render"
	"bookferry/internal/source"
)

const sourceName = "Calibre-Web"

// OPDS link relations and the strict path shapes a catalog entry must match
// before its links are trusted. Misconfigured servers emit junk hrefs; those
// are discarded as empty rather than surfaced.
const (
	relAcquisition = "http://opds-spec.org/acquisition"
	relImage       = "http://opds-spec.org/image"
	relThumbnail   = "http://opds-spec.org/image/thumbnail"
)

var (
	coverPathPattern    = regexp.MustCompile(`^/opds/cover/\d+$`)
	downloadPathPattern = regexp.MustCompile(`^/opds/download/\d+/[\w]+/$`)

	// Characters outside the XML-legal Unicode ranges, stripped before
	// parsing to tolerate malformed feeds.
	illegalXMLPattern = regexp.MustCompile(`[^\x{09}\x{0A}\x{0D}\x{20}-\x{D7FF}\x{E000}-\x{FFFD}]`)
	whitespaceRuns    = regexp.MustCompile(`\s+`)
)

// Adapter is the OPDS catalog backend.
type Adapter struct {
	baseURL      string
	enabled      bool
	defaultLimit int
	client       *http.Client
}

// New builds the adapter. baseURL is the catalog root without the /opds
// suffix.
func New(baseURL string, enabled bool, defaultLimit int) *Adapter {
	return &Adapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		enabled:      enabled,
		defaultLimit: defaultLimit,
		client:       fetch.NewClient(fetch.APITimeout),
	}
}

// Name implements source.Source.
func (a *Adapter) Name() string { return sourceName }

// Enabled implements source.Source.
func (a *Adapter) Enabled() bool { return a.enabled }

// Search implements source.Source.
func (a *Adapter) Search(ctx context.Context, query, rawLimit string) render.Result {
	if !a.enabled {
		return render.NoMatches("backend not enabled")
	}
	if strings.TrimSpace(query) == "" {
		return render.Fail("provide a search keyword")
	}
	limit, err := source.Limit(rawLimit, a.defaultLimit)
	if err != nil {
		return render.Fail(err.Error())
	}

	records, err := a.search(ctx, query)
	if err != nil {
		slog.Error("Calibre search failed", "query", query, "error", err)
		return render.Fail("search failed, see log for details")
	}
	if len(records) == 0 {
		return render.NoMatches("no matching ebooks found")
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return render.Books(records)
}

// Recommend returns n uniformly random records sampled from the whole
// catalog, n clamped to the catalog size. This reads the full catalog via a
// wildcard search on every call.
func (a *Adapter) Recommend(ctx context.Context, n int) render.Result {
	if !a.enabled {
		return render.NoMatches("backend not enabled")
	}
	if n < 1 {
		return render.Fail("recommendation count must be positive")
	}

	records, err := a.search(ctx, "*")
	if err != nil {
		slog.Error("Calibre recommend failed", "error", err)
		return render.Fail("recommendation failed, see log for details")
	}
	if len(records) == 0 {
		return render.NoMatches("nothing in the catalog to recommend")
	}
	if n > len(records) {
		n = len(records)
	}
	picked := make([]book.Record, 0, n)
	for _, idx := range rand.Perm(len(records))[:n] {
		picked = append(picked, records[idx])
	}
	return render.Books(picked)
}

// Download fetches an acquisition URL and streams it to the transport. The
// URL must match the strict acquisition shape, and the server must name the
// file via Content-Disposition; without a name the transfer is refused.
func (a *Adapter) Download(ctx context.Context, bookURL string, transport render.AttachmentTransport) error {
	if !a.enabled {
		return fmt.Errorf("%s is not enabled", sourceName)
	}
	if !classify.IsCalibreURL(bookURL) {
		return fmt.Errorf("provide a valid %s download URL", sourceName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bookURL, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	resp, err := fetch.NewClient(fetch.DownloadTimeout).Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to %s", sourceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	name := fetch.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if strings.TrimSpace(name) == "" {
		slog.Error("Calibre download has no filename", "url", bookURL)
		return fmt.Errorf("could not determine the ebook filename, refusing to send")
	}
	return transport.SendStream(name, resp.Body)
}

func (a *Adapter) search(ctx context.Context, query string) ([]book.Record, error) {
	searchURL := fmt.Sprintf("%s/opds/search/%s", a.baseURL, url.PathEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/atom+xml") {
		return nil, fmt.Errorf("unexpected content type %q", contentType)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	return a.parseFeed(string(raw))
}

// parseFeed extracts records from an OPDS Atom feed. The feed text is
// pre-cleaned (illegal XML characters stripped, whitespace runs collapsed)
// because some catalogs embed raw control characters in summaries.
func (a *Adapter) parseFeed(raw string) ([]book.Record, error) {
	raw = illegalXMLPattern.ReplaceAllString(raw, "")
	raw = whitespaceRuns.ReplaceAllString(raw, " ")

	feed, err := (&atom.Parser{}).Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing OPDS feed: %w", err)
	}
	publishers := entryPublishers(raw)

	records := make([]book.Record, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		records = append(records, a.entryRecord(entry, publishers[entry.ID]))
	}
	return records, nil
}

// publisherFeed is a minimal second decode of the feed. Calibre-Web nests
// the publisher like an author, in an unprefixed Atom-namespace
// <publisher><name> element, which the feed parser drops: it only routes
// prefixed elements into Extensions and has no publisher case of its own.
type publisherFeed struct {
	Entries []struct {
		ID        string `xml:"id"`
		Publisher struct {
			Name string `xml:"name"`
		} `xml:"publisher"`
	} `xml:"entry"`
}

// entryPublishers maps entry IDs to publisher names. A feed where the
// second decode fails yields an empty map, not an error; the records then
// degrade to the unknown-publisher placeholder.
func entryPublishers(raw string) map[string]string {
	var parsed publisherFeed
	if err := xml.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	publishers := make(map[string]string, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		if name := strings.TrimSpace(entry.Publisher.Name); name != "" {
			publishers[entry.ID] = name
		}
	}
	return publishers
}

func (a *Adapter) entryRecord(entry *atom.Entry, publisher string) book.Record {
	if publisher == "" {
		// Some catalogs use dcterms:publisher instead of the nested
		// element; accept both shapes.
		publisher = a.dctermsValue(entry, "publisher")
	}
	rec := book.Record{
		Title:       entry.Title,
		Description: book.CleanDescription(entry.Summary),
		Year:        book.YearFromDate(entry.Published),
		Language:    a.dctermsValue(entry, "language"),
		Publisher:   publisher,
	}

	names := make([]string, 0, len(entry.Authors))
	for _, author := range entry.Authors {
		if author != nil {
			names = append(names, author.Name)
		}
	}
	rec.Authors = book.JoinAuthors(names)

	for _, link := range entry.Links {
		if link == nil {
			continue
		}
		switch link.Rel {
		case relImage, relThumbnail:
			if rec.CoverURL == "" && coverPathPattern.MatchString(link.Href) {
				rec.CoverURL = a.baseURL + link.Href
			}
		case relAcquisition:
			if downloadPathPattern.MatchString(link.Href) {
				rec.Download = book.DownloadRef{Kind: book.RefURL, URL: a.baseURL + link.Href}
				rec.Format = link.Type
				rec.Size = link.Length
			}
		}
	}

	return rec.Fill()
}

func (a *Adapter) dctermsValue(entry *atom.Entry, field string) string {
	exts, ok := entry.Extensions["dcterms"]
	if !ok {
		return ""
	}
	values, ok := exts[field]
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0].Value
}

var _ source.Source = (*Adapter)(nil)
