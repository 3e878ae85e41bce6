// Package render carries search results from the adapters to whatever
// displays them: the tagged result variant, chunking policy and the sink
// contracts the CLI implements.
package render

import (
	"io"

	"bookferry/internal/book"
)

// Kind discriminates the result variant an adapter hands back.
type Kind int

const (
	// Empty means the backend answered but had no matches (or the feature
	// is disabled); Message explains which.
	Empty Kind = iota
	// Failure means the backend could not be queried; Message is the
	// user-facing explanation, detail goes to the log.
	Failure
	// Records means a non-empty list of normalized records.
	Records
)

// Result is the single shape every adapter returns from a search. It replaces
// ad hoc "string or list" branching at the adapter/rendering boundary.
type Result struct {
	Kind    Kind
	Message string
	Records []book.Record
}

// NoMatches builds an Empty result.
func NoMatches(message string) Result {
	return Result{Kind: Empty, Message: message}
}

// Fail builds a Failure result.
func Fail(message string) Result {
	return Result{Kind: Failure, Message: message}
}

// Books builds a Records result. An empty list is a caller bug; adapters are
// expected to return NoMatches instead.
func Books(records []book.Record) Result {
	return Result{Kind: Records, Records: records}
}

// Entry is one line of an aggregate batch: either a normalized record or a
// whole-backend status string. Source names the backend that produced it.
type Entry struct {
	Source  string
	Record  *book.Record
	Message string
	// Cover holds inlined image bytes when cover fetching succeeded;
	// nil renders as no image.
	Cover []byte
}

// Entries flattens a single backend's Result into aggregate entries.
func Entries(source string, r Result) []Entry {
	if r.Kind != Records {
		return []Entry{{Source: source, Message: r.Message}}
	}
	out := make([]Entry, 0, len(r.Records))
	for i := range r.Records {
		out = append(out, Entry{Source: source, Record: &r.Records[i]})
	}
	return out
}

// DefaultChunkSize is the host transport's payload limit per batch. The limit
// is imposed by the transport, not chosen here; it is configurable but must
// default to 30.
const DefaultChunkSize = 30

// Chunk splits entries into groups of at most size. A non-positive size falls
// back to DefaultChunkSize.
func Chunk(entries []Entry, size int) [][]Entry {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(entries) == 0 {
		return nil
	}
	chunks := make([][]Entry, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		chunks = append(chunks, entries[start:end])
	}
	return chunks
}

// Sink is the rendering surface the host runtime provides. The core only
// guarantees correctly chunked batches; presentation is the sink's problem.
type Sink interface {
	// Plain delivers a single plain-text message.
	Plain(message string) error
	// Batches delivers chunked result groups, in order.
	Batches(chunks [][]Entry) error
}

// AttachmentTransport is the file delivery surface the host runtime provides.
type AttachmentTransport interface {
	// SendStream delivers a named byte stream.
	SendStream(name string, r io.Reader) error
	// SendURL delivers a name plus a URL the host can resolve itself.
	SendURL(name, url string) error
}
