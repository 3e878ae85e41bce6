// Package archive queries the archive.org public search and metadata APIs,
// keeping only items that offer a PDF or EPUB file.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookferry/internal/book"
	"bookferry/internal/fetch"
	"bookferry/internal/ratelimit"
	"bookferry/internal/render"
	"bookferry/internal/source"
)

const sourceName = "archive.org"

// overfetch pads the stage-1 row count: stage 2 drops items without a
// supported file, so asking for exactly limit rows would under-deliver.
const overfetch = 10

// cleanupDelay is how long a handed-off temp file lives before the
// best-effort delete.
const cleanupDelay = 5 * time.Second

var supportedExtensions = []string{".pdf", ".epub"}

// Adapter is the archive.org mirror backend.
type Adapter struct {
	baseURL      string
	enabled      bool
	defaultLimit int
	tempDir      string
	client       *http.Client
	limiter      *ratelimit.Limiter

	// sleep is swapped out in tests so deferred cleanup is observable.
	sleep func(time.Duration)
}

// New builds the adapter. baseURL is "https://archive.org" in production and
// a test server in tests.
func New(baseURL string, enabled bool, defaultLimit int, tempDir string) *Adapter {
	return &Adapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		enabled:      enabled,
		defaultLimit: defaultLimit,
		tempDir:      tempDir,
		client:       fetch.NewClient(fetch.APITimeout),
		limiter:      ratelimit.For(sourceName, 10),
		sleep:        time.Sleep,
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
	if !fetch.Accessible(ctx, a.baseURL) {
		return render.Fail("cannot connect to " + sourceName)
	}

	records, err := a.search(ctx, query, limit)
	if err != nil {
		slog.Error("archive.org search failed", "query", query, "error", err)
		return render.Fail("search failed, see log for details")
	}
	if len(records) == 0 {
		return render.NoMatches("no matching ebooks found")
	}
	return render.Books(records)
}

type searchDoc struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

type searchResponse struct {
	Response struct {
		Docs []searchDoc `json:"docs"`
	} `json:"response"`
}

// metadataResponse is the per-item metadata API shape. Metadata values can be
// either a string or a list of strings, hence the flexible field type.
type metadataResponse struct {
	Metadata struct {
		Identifier  string     `json:"identifier"`
		Description flexString `json:"description"`
		Creator     flexString `json:"creator"`
		Language    flexString `json:"language"`
		PublicDate  flexString `json:"publicdate"`
		Publisher   flexString `json:"publisher"`
	} `json:"metadata"`
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

// flexString absorbs the metadata API's string-or-list values.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = flexString(strings.Join(list, ", "))
		return nil
	}
	// Unexpected shape degrades to empty, never to a parse failure.
	*f = ""
	return nil
}

// search runs the two-stage query: advancedsearch for identifiers, then a
// concurrent per-item metadata fetch. The stage-1/stage-2 zip preserves the
// popularity ordering and drops items whose metadata fetch failed or that
// carry no supported file.
func (a *Adapter) search(ctx context.Context, query string, limit int) ([]book.Record, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:%q mediatype:texts", query))
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("sort[]", "downloads desc")
	params.Set("rows", strconv.Itoa(limit+overfetch))
	params.Set("page", "1")
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/advancedsearch.php?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	docs := parsed.Response.Docs
	if len(docs) == 0 {
		return nil, nil
	}

	// Stage 2: metadata per hit, concurrently, collected by index so
	// completion order cannot reorder results.
	stage2 := make([]*book.Record, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			rec, err := a.itemRecord(gctx, doc)
			if err != nil {
				slog.Debug("archive.org metadata fetch failed", "identifier", doc.Identifier, "error", err)
				return nil // a dropped item, not a failed search
			}
			stage2[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]book.Record, 0, limit)
	for _, rec := range stage2 {
		if rec == nil {
			continue
		}
		records = append(records, *rec)
		if len(records) == limit {
			break
		}
	}
	return records, nil
}

// itemRecord fetches one item's metadata and builds a record from the first
// file with a supported extension. Items without one are skipped.
func (a *Adapter) itemRecord(ctx context.Context, doc searchDoc) (*book.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/metadata/"+url.PathEscape(doc.Identifier), nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request: %w", err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata returned status %d", resp.StatusCode)
	}

	var meta metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	identifier := meta.Metadata.Identifier
	if identifier == "" {
		return nil, fmt.Errorf("metadata without identifier")
	}

	fileName := ""
	for _, f := range meta.Files {
		lower := strings.ToLower(f.Name)
		for _, ext := range supportedExtensions {
			if strings.HasSuffix(lower, ext) {
				fileName = f.Name
				break
			}
		}
		if fileName != "" {
			break
		}
	}
	if fileName == "" {
		return nil, fmt.Errorf("no supported file format")
	}

	rec := book.Record{
		Title:       doc.Title,
		Authors:     string(meta.Metadata.Creator),
		Publisher:   string(meta.Metadata.Publisher),
		Language:    string(meta.Metadata.Language),
		Year:        book.YearFromDate(string(meta.Metadata.PublicDate)),
		Description: book.CleanDescription(string(meta.Metadata.Description)),
		CoverURL:    a.baseURL + "/services/img/" + url.PathEscape(identifier),
		Format:      strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		Download: book.DownloadRef{
			Kind: book.RefURL,
			URL:  fmt.Sprintf("%s/download/%s/%s", a.baseURL, identifier, fileName),
		},
	}.Fill()
	return &rec, nil
}

// Download fetches an archive.org file, following redirects with an extended
// timeout, writes it to a private temp path and hands it to the transport.
// The temp file is deleted a few seconds later without blocking the handoff.
func (a *Adapter) Download(ctx context.Context, bookURL string, transport render.AttachmentTransport) error {
	if !a.enabled {
		return fmt.Errorf("%s is not enabled", sourceName)
	}
	if !a.validDownloadURL(bookURL) {
		return fmt.Errorf("provide a valid %s download URL", sourceName)
	}
	if !fetch.Accessible(ctx, a.baseURL) {
		return fmt.Errorf("cannot connect to %s", sourceName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bookURL, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	resp, err := fetch.NewClient(fetch.DownloadTimeout).Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	name := fetch.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		// Redirects may have moved us; derive the name from where we
		// actually landed.
		name = fetch.FilenameFromURL(resp.Request.URL.String(), "unknown_book")
	}
	name = book.TruncateFilename(name, 100)

	tempPath := filepath.Join(a.tempDir, name)
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	slog.Info("archive.org file downloaded", "path", tempPath)

	reader, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("reopening temp file: %w", err)
	}
	defer func() { _ = reader.Close() }()

	sendErr := transport.SendStream(name, reader)
	go a.cleanupFile(tempPath)
	return sendErr
}

// validDownloadURL accepts only /download/<identifier>/<file> URLs on the
// configured host; refs pointing anywhere else are refused before any
// request is made.
func (a *Adapter) validDownloadURL(bookURL string) bool {
	if !strings.HasPrefix(bookURL, a.baseURL+"/download/") {
		return false
	}
	u, err := url.Parse(bookURL)
	if err != nil {
		return false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return len(parts) == 3 && parts[0] == "download" && parts[1] != "" && parts[2] != ""
}

func (a *Adapter) cleanupFile(path string) {
	a.sleep(cleanupDelay)
	if err := os.Remove(path); err != nil {
		slog.Debug("Temp file cleanup failed", "path", path, "error", err)
	}
}

var _ source.Source = (*Adapter)(nil)
