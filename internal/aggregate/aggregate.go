// Package aggregate fans a search out over every enabled backend and merges
// the answers into ordered entries. Backend isolation is the whole point: a
// failing, panicking or empty backend contributes a status entry and never
// touches its siblings.
package aggregate

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"bookferry/internal/book"
	"bookferry/internal/fetch"
	"bookferry/internal/render"
	"bookferry/internal/source"
)

// coverConcurrency bounds parallel cover fetches within one result set.
const coverConcurrency = 5

// Aggregator runs the multi-backend search.
type Aggregator struct {
	sources []source.Source
	covers  func(ctx context.Context, url string) ([]byte, error)
}

// New builds an aggregator over the given backends. Disabled backends are
// skipped at search time, not here, so a backend toggled mid-process is
// picked up.
func New(sources []source.Source) *Aggregator {
	return &Aggregator{
		sources: sources,
		covers:  fetch.Cover,
	}
}

// Search queries every enabled backend concurrently and returns the merged
// entries in backend declaration order. Covers are inlined afterwards with
// bounded parallelism; a failed cover degrades that record to text only.
func (a *Aggregator) Search(ctx context.Context, query, rawLimit string) []render.Entry {
	enabled := make([]source.Source, 0, len(a.sources))
	for _, src := range a.sources {
		if src.Enabled() {
			enabled = append(enabled, src)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	// Results land in a slot per backend so merge order is deterministic
	// regardless of completion order. Closures always return nil: one
	// backend's failure must not cancel the others.
	results := make([]render.Result, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range enabled {
		g.Go(func() error {
			results[i] = safeSearch(gctx, src, query, rawLimit)
			return nil
		})
	}
	_ = g.Wait()

	var entries []render.Entry
	for i, src := range enabled {
		entries = append(entries, render.Entries(src.Name(), results[i])...)
	}
	a.inlineCovers(ctx, entries)
	return entries
}

// safeSearch shields the fan-out from a misbehaving adapter.
func safeSearch(ctx context.Context, src source.Source, query, rawLimit string) (res render.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Backend panicked during search", "source", src.Name(), "panic", r)
			res = render.Fail("backend failed unexpectedly")
		}
	}()
	return src.Search(ctx, query, rawLimit)
}

func (a *Aggregator) inlineCovers(ctx context.Context, entries []render.Entry) {
	g := &errgroup.Group{}
	g.SetLimit(coverConcurrency)
	for i := range entries {
		entry := &entries[i]
		if entry.Record == nil {
			continue
		}
		coverURL := entry.Record.CoverURL
		if coverURL == "" || coverURL == book.PlaceholderUnknown {
			continue
		}
		g.Go(func() error {
			data, err := a.covers(ctx, coverURL)
			if err != nil {
				slog.Debug("Cover fetch failed", "url", coverURL, "error", err)
				return nil
			}
			entry.Cover = data
			return nil
		})
	}
	_ = g.Wait()
}
