package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alecthomas/assert/v2"

	"bookferry/internal/book"
	"bookferry/internal/render"
	"bookferry/internal/source"
)

type stubSource struct {
	name    string
	enabled bool
	result  render.Result
	panics  bool
	calls   atomic.Int32
}

func (s *stubSource) Name() string  { return s.name }
func (s *stubSource) Enabled() bool { return s.enabled }

func (s *stubSource) Search(context.Context, string, string) render.Result {
	s.calls.Add(1)
	if s.panics {
		panic("adapter bug")
	}
	return s.result
}

var _ source.Source = (*stubSource)(nil)

func record(title string) book.Record {
	return book.Record{Title: title}.Fill()
}

func TestSearchIsolatesBackends(t *testing.T) {
	healthy := &stubSource{
		name:    "healthy",
		enabled: true,
		result:  render.Books([]book.Record{record("Dune"), record("Hyperion")}),
	}
	empty := &stubSource{
		name:    "empty",
		enabled: true,
		result:  render.NoMatches("no matching ebooks found"),
	}
	broken := &stubSource{
		name:    "broken",
		enabled: true,
		result:  render.Fail("cannot connect to broken"),
	}
	crashing := &stubSource{name: "crashing", enabled: true, panics: true}
	disabled := &stubSource{name: "disabled"}

	a := New([]source.Source{healthy, empty, broken, crashing, disabled})
	a.covers = func(context.Context, string) ([]byte, error) { return nil, errors.New("no covers") }

	entries := a.Search(context.Background(), "dune", "")

	// Declaration order, one status entry per non-record backend, the
	// disabled backend never queried.
	assert.Equal(t, 5, len(entries))
	assert.Equal(t, "healthy", entries[0].Source)
	assert.Equal(t, "Dune", entries[0].Record.Title)
	assert.Equal(t, "Hyperion", entries[1].Record.Title)
	assert.Equal(t, "no matching ebooks found", entries[2].Message)
	assert.Equal(t, "cannot connect to broken", entries[3].Message)
	assert.Equal(t, "crashing", entries[4].Source)
	assert.Equal(t, "backend failed unexpectedly", entries[4].Message)
	assert.Equal(t, int32(0), disabled.calls.Load())
}

func TestSearchNoEnabledBackends(t *testing.T) {
	a := New([]source.Source{&stubSource{name: "off"}})
	assert.Equal(t, 0, len(a.Search(context.Background(), "dune", "")))
}

func TestSearchInlinesCovers(t *testing.T) {
	withCover := record("Dune")
	withCover.CoverURL = "http://covers.test/dune.jpg"
	withBadCover := record("Hyperion")
	withBadCover.CoverURL = "http://covers.test/missing.jpg"
	noCover := record("Ubik")

	src := &stubSource{
		name:    "books",
		enabled: true,
		result:  render.Books([]book.Record{withCover, withBadCover, noCover}),
	}

	var fetches atomic.Int32
	a := New([]source.Source{src})
	a.covers = func(_ context.Context, url string) ([]byte, error) {
		fetches.Add(1)
		if url == "http://covers.test/dune.jpg" {
			return []byte("jpeg bytes"), nil
		}
		return nil, errors.New("404")
	}

	entries := a.Search(context.Background(), "dune", "")
	assert.Equal(t, 3, len(entries))
	assert.Equal(t, "jpeg bytes", string(entries[0].Cover))
	// Failed fetch degrades to text only, placeholder URL is never fetched.
	assert.Zero(t, entries[1].Cover)
	assert.Zero(t, entries[2].Cover)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestSearchBoundsCoverConcurrency(t *testing.T) {
	records := make([]book.Record, 20)
	for i := range records {
		r := record(fmt.Sprintf("Book %d", i))
		r.CoverURL = fmt.Sprintf("http://covers.test/%d.jpg", i)
		records[i] = r
	}
	src := &stubSource{name: "books", enabled: true, result: render.Books(records)}

	var inflight, peak atomic.Int32
	a := New([]source.Source{src})
	a.covers = func(context.Context, string) ([]byte, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return []byte("img"), nil
	}

	a.Search(context.Background(), "dune", "")
	assert.True(t, peak.Load() <= coverConcurrency)
}
