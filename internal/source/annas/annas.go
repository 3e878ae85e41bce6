// Package annas searches the Anna's Archive web index by scraping its search
// pages. The backend has no JSON API and never serves files itself, so
// downloads resolve to a categorized list of mirror links instead of bytes.
package annas

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bookferry/internal/book"
	"bookferry/internal/classify"
	"bookferry/internal/fetch"
	"bookferry/internal/render"
	"bookferry/internal/source"
)

const sourceName = "Anna's Archive"

var (
	md5PathPattern = regexp.MustCompile(`^/md5/([a-fA-F0-9]{32})`)
	// Publisher lines carry a trailing ", <year>" when the year is known.
	publisherYearPattern = regexp.MustCompile(`^(.*?),\s*(\d{4})$`)
	sizePattern          = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*[KMG]B$`)
	formatPattern        = regexp.MustCompile(`^\.?[a-z][a-z0-9]{1,5}$`)
)

// Adapter is the Anna's Archive backend.
type Adapter struct {
	baseURL      string
	enabled      bool
	defaultLimit int
	client       *http.Client
	prober       func(ctx context.Context, url string) bool
}

// New builds the adapter.
func New(baseURL string, enabled bool, defaultLimit int) *Adapter {
	return &Adapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		enabled:      enabled,
		defaultLimit: defaultLimit,
		client:       fetch.NewClient(fetch.APITimeout),
		prober:       fetch.Accessible,
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
	if !a.prober(ctx, a.baseURL) {
		return render.Fail("cannot connect to " + sourceName)
	}

	records, err := a.search(ctx, query)
	if err != nil {
		slog.Error("Anna's Archive search failed", "query", query, "error", err)
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

func (a *Adapter) search(ctx context.Context, query string) ([]book.Record, error) {
	doc, err := a.page(ctx, "/search?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	return a.parseResults(doc), nil
}

// parseResults walks the result cards. Each card is an anchor to the book's
// /md5/ page; inside it the markup carries a file-info line tagged text-xs,
// the title in an h3 and, after the title, the publisher and author lines.
// Selectors are pinned to the markup served in mid-2026 and need revisiting
// when the site changes its layout.
func (a *Adapter) parseResults(doc *goquery.Document) []book.Record {
	var records []book.Record
	doc.Find(`a[href^="/md5/"]`).Each(func(_ int, row *goquery.Selection) {
		href, _ := row.Attr("href")
		m := md5PathPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := strings.ToLower(m[1])

		title := strings.TrimSpace(row.Find("h3").First().Text())
		if title == "" {
			return
		}

		language, format, size := parseFileInfo(row.Find("div.text-xs").First().Text())

		meta := row.Find("h3").First().NextAllFiltered("div")
		publisher := strings.TrimSpace(meta.Eq(0).Text())
		authors := strings.TrimSpace(meta.Eq(1).Text())
		year := ""
		if pm := publisherYearPattern.FindStringSubmatch(publisher); pm != nil {
			publisher = strings.TrimSpace(pm[1])
			year = pm[2]
		}

		cover := ""
		if src, ok := row.Find("img").First().Attr("src"); ok {
			cover = a.absoluteURL(src)
		}

		records = append(records, book.Record{
			Title:     title,
			Authors:   authors,
			Publisher: publisher,
			Year:      year,
			Language:  language,
			Format:    format,
			Size:      size,
			CoverURL:  cover,
			Download: book.DownloadRef{
				Kind: book.RefTagged,
				Tag:  classify.AnnasPrefix,
				ID:   id,
			},
		}.Fill())
	})
	return records
}

// parseFileInfo splits the comma-separated file-info line, for example
// "English [en], epub, 1.9MB, 2015", into its parts. Fields the line does
// not carry stay empty.
func parseFileInfo(line string) (language, format, size string) {
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.Contains(part, "["):
			language = part
		case sizePattern.MatchString(part):
			size = part
		case format == "" && formatPattern.MatchString(part):
			format = strings.TrimPrefix(part, ".")
		}
	}
	return language, format, size
}

// mirrorLink is one download option scraped from a book page.
type mirrorLink struct {
	title string
	url   string
}

// Download resolves a tagged Anna's Archive ID to the book page's mirror
// links and hands them to the transport as a categorized choice list, fast
// partner mirrors first. The adapter never fetches the file itself.
func (a *Adapter) Download(ctx context.Context, taggedID string, transport render.AttachmentTransport) error {
	if !a.enabled {
		return fmt.Errorf("%s is not enabled", sourceName)
	}
	owner, id := classify.TaggedID(taggedID)
	if owner != classify.Annas {
		return fmt.Errorf("provide a valid %s ebook ID", sourceName)
	}

	doc, err := a.page(ctx, "/md5/"+id)
	if err != nil {
		slog.Error("Anna's Archive book page fetch failed", "id", id, "error", err)
		return fmt.Errorf("could not fetch ebook details, check the ID")
	}

	fast, slow, other := a.mirrorLinks(doc)
	if len(fast)+len(slow)+len(other) == 0 {
		return fmt.Errorf("no download links found for this ebook")
	}

	groups := []struct {
		note  string
		links []mirrorLink
	}{
		{"fast partner, membership required", fast},
		{"slow partner, waitlist", slow},
		{"third-party mirror", other},
	}
	for _, g := range groups {
		for _, link := range g.links {
			name := fmt.Sprintf("%s (%s)", link.title, g.note)
			if err := transport.SendURL(name, link.url); err != nil {
				return err
			}
		}
	}
	return nil
}

// mirrorLinks collects the download anchors from a book page and splits them
// by the partner-server naming the site uses in the link text.
func (a *Adapter) mirrorLinks(doc *goquery.Document) (fast, slow, other []mirrorLink) {
	doc.Find("a.js-download-link").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		link := mirrorLink{
			title: strings.TrimSpace(sel.Text()),
			url:   a.absoluteURL(href),
		}
		switch {
		case strings.Contains(link.title, "Fast Partner Server"):
			fast = append(fast, link)
		case strings.Contains(link.title, "Slow Partner Server"):
			slow = append(slow, link)
		default:
			other = append(other, link)
		}
	})
	return fast, slow, other
}

func (a *Adapter) page(ctx context.Context, path string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// absoluteURL resolves a scraped href against the configured base so
// relative mirror and thumbnail paths survive outside the page context.
func (a *Adapter) absoluteURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(a.baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

var _ source.Source = (*Adapter)(nil)
