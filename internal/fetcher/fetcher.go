package fetcher

import (
	"context"
	"fmt"
	"net/url"
)

// Fetcher defines the interface for exchanging form posts with a remote source.
type Fetcher interface {
	// PostForm posts form to rawURL and returns the full response body.
	// Non-200 responses return the body alongside a *StatusError.
	PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error)
}

// StatusError reports a non-200 response. Body is kept because some sources
// signal failures inside the payload rather than the status code.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
