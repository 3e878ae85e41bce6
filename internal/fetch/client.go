// Package fetch holds the HTTP plumbing shared by the backend adapters:
// client construction, the reachability probe, Content-Disposition filename
// extraction and cover image resolution.
package fetch

import (
	"net/http"
	"time"
)

// Timeouts used across the adapters. Probes stay short so an unreachable
// backend fails fast; file downloads get minutes because archive items can
// be large.
const (
	ProbeTimeout    = 5 * time.Second
	APITimeout      = 10 * time.Second
	DownloadTimeout = 5 * time.Minute
)

const userAgent = "bookferry/1.0"

// NewClient returns an HTTP client with the given overall timeout.
// Redirects are followed by default, matching the archive download flow.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewRequest builds a request carrying the project User-Agent.
func withUserAgent(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", userAgent)
	return req
}
