// Package fetcher downloads reference datasets (exclusion lists, license
// rosters) over HTTP with per-host rate limiting, retry and conditional GET.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote reference data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Fetch performs a conditional GET. When the server reports the
	// validators unchanged, the returned Result has NotModified set and a nil Body.
	Fetch(ctx context.Context, url string, prev Validators) (*Result, error)
}

// Validators are the cache validators from a previous download.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Result is a conditional download outcome.
type Result struct {
	Body        io.ReadCloser
	Validators  Validators
	NotModified bool
}
