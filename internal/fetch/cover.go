package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/disintegration/imaging"
)

// maxCoverBytes caps inlined cover payloads; anything larger is dropped
// because the rendering transport rejects oversized attachments anyway.
const maxCoverBytes = 512 * 1024

// maxCoverWidth is the bound covers are downscaled to before inlining.
const maxCoverWidth = 600

// ErrNoCover is returned when a cover URL does not resolve to a usable image.
var ErrNoCover = errors.New("no usable cover image")

// coverClient fetches cover payloads. Covers are real file transfers, not
// reachability checks, so they get the API timeout rather than the short
// probe timeout.
var coverClient = NewClient(APITimeout)

// Cover fetches a cover image, following one level of HTML indirection: some
// backends hand out a page URL whose og:image meta tag points at the real
// image. Recursion depth is fixed at 1; a page pointing at another page
// resolves to no cover.
func Cover(ctx context.Context, coverURL string) ([]byte, error) {
	return fetchCover(ctx, coverURL, true)
}

func fetchCover(ctx context.Context, coverURL string, followHTML bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building cover request: %w", err)
	}
	resp, err := coverClient.Do(withUserAgent(req))
	if err != nil {
		return nil, fmt.Errorf("fetching cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover fetch status %d: %w", resp.StatusCode, ErrNoCover)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "html") {
		if !followHTML {
			return nil, ErrNoCover
		}
		target, err := ogImageURL(resp.Body)
		if err != nil {
			return nil, err
		}
		return fetchCover(ctx, target, false)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading cover body: %w", err)
	}
	if len(data) > maxCoverBytes {
		slog.Debug("Cover exceeds size cap, dropping", "url", coverURL, "bytes", len(data))
		return nil, ErrNoCover
	}
	return normalizeImage(data)
}

// ogImageURL scrapes the og:image meta tag out of an HTML page.
func ogImageURL(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parsing cover page: %w", err)
	}
	content, ok := doc.Find(`meta[property="og:image"]`).Attr("content")
	if !ok || content == "" {
		return "", ErrNoCover
	}
	return content, nil
}

// normalizeImage verifies the payload decodes as an image and downscales
// anything wider than maxCoverWidth. Undecodable payloads are not covers.
func normalizeImage(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding cover: %w", ErrNoCover)
	}
	if img.Bounds().Dx() <= maxCoverWidth {
		return data, nil
	}
	resized := imaging.Resize(img, maxCoverWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	enc := imaging.JPEG
	if format == "png" {
		enc = imaging.PNG
	}
	if err := imaging.Encode(&buf, resized, enc); err != nil {
		return nil, fmt.Errorf("re-encoding cover: %w", err)
	}
	return buf.Bytes(), nil
}
