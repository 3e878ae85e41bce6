package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// probeTTL is how long one reachability verdict is trusted. The aggregate
// search probes the same hosts for every request; a short cache keeps that
// from doubling every backend's latency.
const probeTTL = time.Minute

type probeResult struct {
	checked time.Time
	ok      bool
}

// Prober answers "is this backend worth querying right now" with a short
// HEAD request, caching verdicts briefly.
type Prober struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]probeResult
	now   func() time.Time
}

// NewProber builds a prober with the standard short probe timeout.
func NewProber() *Prober {
	return &Prober{
		client: NewClient(ProbeTimeout),
		cache:  map[string]probeResult{},
		now:    time.Now,
	}
}

var defaultProber = NewProber()

// Accessible reports whether url answers a HEAD request with 200 within the
// probe timeout, using the process-wide prober.
func Accessible(ctx context.Context, url string) bool {
	return defaultProber.Accessible(ctx, url)
}

// Accessible reports whether url currently answers a HEAD request with 200.
// Any error, timeout or non-200 status counts as unreachable.
func (p *Prober) Accessible(ctx context.Context, url string) bool {
	p.mu.Lock()
	if cached, ok := p.cache[url]; ok && p.now().Sub(cached.checked) < probeTTL {
		p.mu.Unlock()
		return cached.ok
	}
	p.mu.Unlock()

	ok := p.probe(ctx, url)

	p.mu.Lock()
	p.cache[url] = probeResult{checked: p.now(), ok: ok}
	p.mu.Unlock()
	return ok
}

func (p *Prober) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(withUserAgent(req))
	if err != nil {
		slog.Debug("Reachability probe failed", "url", url, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
