package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bookferry/internal/book"
	"bookferry/internal/fetch"
)

// ConsoleSink renders batches as text, one record per stanza. It stands in
// for the chat-transport sink in the CLI deployment.
type ConsoleSink struct {
	Out io.Writer
}

// NewConsoleSink writes to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{Out: os.Stdout}
}

// Plain implements Sink.
func (s *ConsoleSink) Plain(message string) error {
	_, err := fmt.Fprintln(s.Out, message)
	return err
}

// Batches implements Sink.
func (s *ConsoleSink) Batches(chunks [][]Entry) error {
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			if _, err := fmt.Fprintf(s.Out, "--- batch %d/%d ---\n", i+1, len(chunks)); err != nil {
				return err
			}
		}
		for _, entry := range chunk {
			if err := s.writeEntry(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ConsoleSink) writeEntry(e Entry) error {
	if e.Record == nil {
		_, err := fmt.Fprintf(s.Out, "[%s] %s\n", e.Source, e.Message)
		return err
	}
	r := e.Record
	_, err := fmt.Fprintf(s.Out,
		"[%s] %s\n  Authors: %s\n  Year: %s\n  Publisher: %s\n  Language: %s\n  Format: %s  Size: %s\n  Description: %s\n  Ref (for download): %s\n",
		e.Source, r.Title, r.Authors, r.Year, r.Publisher, r.Language, r.Format, r.Size, r.Description, r.Download.Display())
	return err
}

// FileTransport implements AttachmentTransport by writing streams into a
// local directory and printing resolvable URLs.
type FileTransport struct {
	Dir string
	Out io.Writer
}

// NewFileTransport stores attachments under dir.
func NewFileTransport(dir string) *FileTransport {
	return &FileTransport{Dir: dir, Out: os.Stdout}
}

// SendStream implements AttachmentTransport. The name may come from a
// remote server; anything path-shaped is reduced to its base so the file
// cannot land outside the download directory.
func (t *FileTransport) SendStream(name string, r io.Reader) error {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	name = fetch.SanitizeFilename(name)
	if name == "" {
		name = "attachment"
	}
	path := filepath.Join(t.Dir, book.TruncateFilename(name, 200))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, err = fmt.Fprintf(t.Out, "saved %s\n", path)
	return err
}

// SendURL implements AttachmentTransport.
func (t *FileTransport) SendURL(name, url string) error {
	_, err := fmt.Fprintf(t.Out, "%s: %s\n", name, url)
	return err
}
