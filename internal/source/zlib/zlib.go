package zlib

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bookferry/internal/book"
	"bookferry/internal/classify"
	"bookferry/internal/fetch"
	"bookferry/internal/render"
	"bookferry/internal/retry"
	"bookferry/internal/source"
)

const sourceName = "Z-Library"

const (
	maxLoginAttempts  = 3
	maxSearchAttempts = 3
	searchRetryDelay  = 500 * time.Millisecond
	cleanupDelay      = 5 * time.Second
)

// Options configures the adapter.
type Options struct {
	BaseURL  string
	Enabled  bool
	Email    string
	Password string
	Limit    int
	TempDir  string
	// Disable is called at most once, when the backend must be turned off
	// for good (missing or rejected credentials). It is expected to
	// persist the flag.
	Disable func(reason string)
}

// Adapter wraps the Z-Library client with login-on-demand, bounded retries
// and disable-on-bad-credentials.
type Adapter struct {
	opts   Options
	client Client

	// mu serializes session mutation so concurrent calls finding an
	// invalid session do not trigger parallel logins.
	mu      sync.Mutex
	enabled bool
	sleep   func(time.Duration)
	prober  func(ctx context.Context, url string) bool
}

// New builds the adapter and attempts the initial login when credentials are
// configured. Missing credentials or a rejected login permanently disable
// the backend for this process rather than hammering it on every call.
func New(opts Options, client Client) *Adapter {
	a := &Adapter{
		opts:    opts,
		client:  client,
		enabled: opts.Enabled,
		sleep:   time.Sleep,
		prober:  fetch.Accessible,
	}
	if !a.enabled {
		return a
	}
	if strings.TrimSpace(opts.Email) == "" || strings.TrimSpace(opts.Password) == "" {
		a.disable("no Z-Library account configured")
		return a
	}
	if err := client.Login(context.Background(), opts.Email, opts.Password); err != nil {
		a.disable(fmt.Sprintf("Z-Library login rejected: %v", err))
		return a
	}
	slog.Info("Logged in to Z-Library")
	return a
}

func (a *Adapter) disable(reason string) {
	a.enabled = false
	if a.opts.Disable != nil {
		a.opts.Disable(reason)
	}
}

// Name implements source.Source.
func (a *Adapter) Name() string { return sourceName }

// Enabled implements source.Source.
func (a *Adapter) Enabled() bool { return a.enabled }

// ensureLogin re-establishes the session when a call finds it invalid,
// bounded by maxLoginAttempts. Exhausting the attempts fails only this call;
// a later call may find the backend recovered.
func (a *Adapter) ensureLogin(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client.IsLoggedIn() {
		return nil
	}
	return retry.Do(ctx, retry.Policy{Attempts: maxLoginAttempts}, func() error {
		if err := a.client.Login(ctx, a.opts.Email, a.opts.Password); err != nil {
			return err
		}
		if !a.client.IsLoggedIn() {
			return fmt.Errorf("session still invalid after login")
		}
		return nil
	})
}

// Search implements source.Source.
func (a *Adapter) Search(ctx context.Context, query, rawLimit string) render.Result {
	if !a.enabled {
		return render.NoMatches("backend not enabled")
	}
	if strings.TrimSpace(query) == "" {
		return render.Fail("provide a search keyword")
	}
	limit, err := source.Limit(rawLimit, a.opts.Limit)
	if err != nil {
		return render.Fail(err.Error())
	}
	if !a.prober(ctx, a.opts.BaseURL) {
		return render.Fail("cannot connect to " + sourceName)
	}
	if err := a.ensureLogin(ctx); err != nil {
		slog.Error("Z-Library login failed", "error", err)
		return render.Fail("login failed")
	}

	// The remote search can transient-fail independently of login. A
	// zero-hit answer after a successful call is a legitimate empty
	// result and must not be reported as an outage.
	var books []Book
	err = retry.Do(ctx, retry.Policy{Attempts: maxSearchAttempts, Delay: searchRetryDelay}, func() error {
		var searchErr error
		books, searchErr = a.client.Search(ctx, query, limit)
		return searchErr
	})
	if err != nil {
		slog.Error("Z-Library search failed after retries", "query", query, "error", err)
		return render.Fail(sourceName + " is temporarily unreachable, try again later")
	}
	if len(books) == 0 {
		return render.NoMatches("no matching ebooks found")
	}

	records := make([]book.Record, 0, len(books))
	for _, b := range books {
		records = append(records, recordFromBook(b))
	}
	return render.Books(records)
}

func recordFromBook(b Book) book.Record {
	return book.Record{
		Title:       b.Title,
		Authors:     b.Author,
		Year:        b.Year.String(),
		Publisher:   b.Publisher,
		Language:    b.Language,
		Description: book.CleanDescription(b.Description),
		CoverURL:    b.Cover,
		Format:      b.Extension,
		Size:        b.Filesize.String(),
		Download: book.DownloadRef{
			Kind: book.RefIDHash,
			ID:   b.ID.String(),
			Hash: b.Hash,
		},
	}.Fill()
}

// Download validates the (id, hash) pair against the backend before fetching,
// writes the content to a private temp path and hands it to the transport.
func (a *Adapter) Download(ctx context.Context, id, hash string, transport render.AttachmentTransport) error {
	if !a.enabled {
		return fmt.Errorf("%s is not enabled", sourceName)
	}
	if !classify.IsZlibPair(id, hash) {
		return fmt.Errorf("provide a numeric ID and a 6-character hex hash")
	}
	if !a.prober(ctx, a.opts.BaseURL) {
		return fmt.Errorf("cannot connect to %s", sourceName)
	}
	if err := a.ensureLogin(ctx); err != nil {
		slog.Error("Z-Library login failed", "error", err)
		return fmt.Errorf("login failed")
	}

	if _, err := a.client.GetBookInfo(ctx, id, hash); err != nil {
		slog.Error("Z-Library book info failed", "id", id, "error", err)
		return fmt.Errorf("could not fetch ebook details, check the ID and hash")
	}

	name, content, err := a.client.DownloadBook(ctx, id, hash)
	if err != nil {
		slog.Error("Z-Library download failed", "id", id, "error", err)
		return fmt.Errorf("download failed, try again later")
	}

	name = fetch.SanitizeFilename(name)
	if name == "" {
		name = "book"
	}
	name = book.TruncateFilename(name, 100)
	tempPath := filepath.Join(a.opts.TempDir, name)
	if err := os.WriteFile(tempPath, content, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	slog.Debug("Z-Library file downloaded", "path", tempPath)

	f, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("reopening temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sendErr := transport.SendStream(name, f)
	go func() {
		a.sleep(cleanupDelay)
		if err := os.Remove(tempPath); err != nil {
			slog.Debug("Temp file cleanup failed", "path", tempPath, "error", err)
		}
	}()
	return sendErr
}

var _ source.Source = (*Adapter)(nil)
