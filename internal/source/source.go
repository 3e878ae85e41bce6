// Package source defines the contract every ebook backend adapter satisfies
// and the shared limit-normalization policy.
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"bookferry/internal/render"
)

// Source is one external ebook backend. Search never returns an error: every
// failure mode is folded into the Result so one backend can never break the
// aggregate fan-out.
type Source interface {
	// Name is the user-visible backend name used to tag result entries.
	Name() string
	// Enabled reports the backend's configuration flag.
	Enabled() bool
	// Search queries the backend. rawLimit is the user's limit argument
	// verbatim; adapters normalize it through Limit.
	Search(ctx context.Context, query, rawLimit string) render.Result
}

// Limit bounds for every backend. Out-of-range input is rejected with a
// range-stating message rather than clamped, uniformly.
const (
	MinLimit = 1
	MaxLimit = 100
)

// Limit normalizes a raw limit argument: empty or non-numeric input falls
// back to def; out-of-range numbers return an error naming the range.
func Limit(raw string, def int) (int, error) {
	value := def
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			value = n
		}
	}
	if value < MinLimit || value > MaxLimit {
		return 0, fmt.Errorf("result limit must be between %d and %d", MinLimit, MaxLimit)
	}
	return value, nil
}
