// Package liber3 queries the Liber3 distributed ebook index: a keyword
// search for lightweight hits followed by one batched detail lookup, with
// downloads resolved through an IPFS gateway.
package liber3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"bookferry/internal/book"
	"bookferry/internal/classify"
	"bookferry/internal/fetch"
	"bookferry/internal/render"
	"bookferry/internal/source"
)

const sourceName = "Liber3"

// Adapter is the Liber3 index backend.
type Adapter struct {
	baseURL      string
	gatewayURL   string
	enabled      bool
	defaultLimit int
	client       *http.Client
}

// New builds the adapter. gatewayURL is the IPFS gateway download URLs are
// constructed against.
func New(baseURL, gatewayURL string, enabled bool, defaultLimit int) *Adapter {
	return &Adapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		gatewayURL:   strings.TrimRight(gatewayURL, "/"),
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

	records, err := a.search(ctx, query, limit)
	if err != nil {
		slog.Error("Liber3 search failed", "query", query, "error", err)
		return render.Fail("search failed, see log for details")
	}
	if len(records) == 0 {
		return render.NoMatches("no matching ebooks found")
	}
	return render.Books(records)
}

type searchHit struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type searchResponse struct {
	Data struct {
		Book []searchHit `json:"book"`
	} `json:"data"`
}

// bookDetail is one entry of the batched detail response.
type bookDetail struct {
	Book struct {
		Title     string `json:"title"`
		Author    string `json:"author"`
		Year      string `json:"year"`
		Publisher string `json:"publisher"`
		Language  string `json:"language"`
		Filesize  string `json:"filesize"`
		Extension string `json:"extension"`
		IPFSCid   string `json:"ipfs_cid"`
	} `json:"book"`
}

type detailResponse struct {
	Data struct {
		Book map[string]bookDetail `json:"book"`
	} `json:"data"`
}

// search runs the keyword call, takes the first limit hit IDs, and resolves
// their details in one batched call. Batching is a backend cost-control
// measure: N hits must never become N detail requests.
func (a *Adapter) search(ctx context.Context, query string, limit int) ([]book.Record, error) {
	var parsed searchResponse
	if err := a.post(ctx, "/v1/searchV2", map[string]any{"address": "", "word": query}, &parsed); err != nil {
		return nil, err
	}
	hits := parsed.Data.Book
	if len(hits) == 0 {
		return nil, nil
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.ID != "" {
			ids = append(ids, hit.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("search hits carried no IDs")
	}

	details, err := a.details(ctx, ids)
	if err != nil {
		return nil, err
	}

	records := make([]book.Record, 0, len(hits))
	for _, hit := range hits {
		detail := details[hit.ID].Book
		records = append(records, book.Record{
			Title:     hit.Title,
			Authors:   hit.Author,
			Year:      detail.Year,
			Publisher: detail.Publisher,
			Language:  detail.Language,
			Size:      detail.Filesize,
			Format:    detail.Extension,
			Download: book.DownloadRef{
				Kind: book.RefTagged,
				Tag:  classify.Liber3Prefix,
				ID:   hit.ID,
			},
		}.Fill())
	}
	return records, nil
}

func (a *Adapter) details(ctx context.Context, ids []string) (map[string]bookDetail, error) {
	var parsed detailResponse
	if err := a.post(ctx, "/v1/book", map[string]any{"book_ids": ids}, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data.Book, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Download resolves a tagged Liber3 ID to an IPFS gateway URL and hands it to
// the transport. Records missing the content hash or extension are refused
// rather than turned into broken URLs.
func (a *Adapter) Download(ctx context.Context, taggedID string, transport render.AttachmentTransport) error {
	if !a.enabled {
		return fmt.Errorf("%s is not enabled", sourceName)
	}
	owner, id := classify.TaggedID(taggedID)
	if owner != classify.Liber3 {
		return fmt.Errorf("provide a valid %s ebook ID", sourceName)
	}

	details, err := a.details(ctx, []string{id})
	if err != nil {
		slog.Error("Liber3 detail lookup failed", "id", id, "error", err)
		return fmt.Errorf("could not fetch ebook metadata, check the ID")
	}
	detail, ok := details[id]
	if !ok {
		return fmt.Errorf("could not fetch ebook metadata, check the ID")
	}

	info := detail.Book
	if info.IPFSCid == "" || info.Extension == "" {
		return fmt.Errorf("insufficient information to complete the download")
	}

	title := info.Title
	if title == "" {
		title = "unknown_book"
	}
	name := strings.ReplaceAll(title, " ", "_") + "." + info.Extension
	gateway := fmt.Sprintf("%s/ipfs/%s?filename=%s", a.gatewayURL, info.IPFSCid, url.QueryEscape(name))
	return transport.SendURL(name, gateway)
}

var _ source.Source = (*Adapter)(nil)
