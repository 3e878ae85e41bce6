package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookferry/internal/book"
	"bookferry/internal/testutil"
)

func makeEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{Source: "test", Message: "x"}
	}
	return entries
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		size      int
		wantSizes []int
	}{
		{"exactly one full chunk", 30, 30, []int{30}},
		{"one over yields a trailing single", 31, 30, []int{30, 1}},
		{"under the limit stays whole", 12, 30, []int{12}},
		{"multiple full chunks", 90, 30, []int{30, 30, 30}},
		{"zero size falls back to default", 31, 0, []int{30, 1}},
		{"empty input yields nothing", 0, 30, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(makeEntries(tt.count), tt.size)
			require.Len(t, chunks, len(tt.wantSizes))
			for i, want := range tt.wantSizes {
				assert.Len(t, chunks[i], want)
			}
		})
	}
}

func TestEntriesFlattening(t *testing.T) {
	records := []book.Record{
		book.Record{Title: "First"}.Fill(),
		book.Record{Title: "Second"}.Fill(),
	}

	entries := Entries("calibre", Books(records))
	require.Len(t, entries, 2)
	assert.Equal(t, "First", entries[0].Record.Title)
	assert.Equal(t, "calibre", entries[0].Source)

	entries = Entries("archive", NoMatches("no matching ebooks found"))
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Record)
	assert.Equal(t, "no matching ebooks found", entries[0].Message)

	entries = Entries("zlib", Fail("temporarily unreachable"))
	require.Len(t, entries, 1)
	assert.Equal(t, Failure, Fail("x").Kind)
	assert.Equal(t, "temporarily unreachable", entries[0].Message)
}

func TestConsoleSinkBatches(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{Out: &buf}

	rec := book.Record{
		Title:    "Foundation",
		Authors:  "Isaac Asimov",
		Download: book.DownloadRef{Kind: book.RefTagged, Tag: 'L', ID: strings.Repeat("a", 32)},
	}.Fill()

	entries := append([]Entry{{Source: "liber3", Record: &rec}}, makeEntries(30)...)
	err := sink.Batches(Chunk(entries, 30))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "--- batch 1/2 ---")
	assert.Contains(t, out, "--- batch 2/2 ---")
	assert.Contains(t, out, "Foundation")
	assert.Contains(t, out, "L"+strings.Repeat("a", 32))
}

func TestConsoleSinkSingleBatchHasNoSeparator(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{Out: &buf}

	require.NoError(t, sink.Batches(Chunk(makeEntries(3), 30)))
	assert.NotContains(t, buf.String(), "--- batch")
}

func TestFileTransport(t *testing.T) {
	env := testutil.NewTestEnv(t)
	var buf bytes.Buffer
	tr := &FileTransport{Dir: env.Path("downloads"), Out: &buf}

	require.NoError(t, tr.SendStream("book.epub", strings.NewReader("content")))
	assert.Contains(t, buf.String(), "book.epub")
	assert.Equal(t, "content", env.ReadFileString("downloads/book.epub"))

	buf.Reset()
	require.NoError(t, tr.SendURL("book.pdf", "https://example.org/file.pdf"))
	assert.Contains(t, buf.String(), "https://example.org/file.pdf")
}

func TestFileTransportConfinesPathShapedNames(t *testing.T) {
	env := testutil.NewTestEnv(t)
	var buf bytes.Buffer
	tr := &FileTransport{Dir: env.Path("downloads"), Out: &buf}

	require.NoError(t, tr.SendStream("../../escape.epub", strings.NewReader("x")))
	assert.False(t, env.FileExists("escape.epub"))
	assert.Equal(t, "x", env.ReadFileString("downloads/escape.epub"))

	require.NoError(t, tr.SendStream("..", strings.NewReader("y")))
	assert.Equal(t, "y", env.ReadFileString("downloads/attachment"))
}
