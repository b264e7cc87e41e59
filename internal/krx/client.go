// Package krx talks to the KRX market data download service: a two-step
// OTP exchange followed by an EUC-KR CSV download.
package krx

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/korean"

	"github.com/sells-group/krx-sync/internal/fetcher"
	"github.com/sells-group/krx-sync/internal/resilience"
)

// DeniedMarker is the body text KRX returns when it refuses a request.
const DeniedMarker = "Access Denied"

// Source fetches one screen as a decoded table.
type Source interface {
	Fetch(ctx context.Context, req Request) (*fetcher.Table, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req Request) (*fetcher.Table, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, req Request) (*fetcher.Table, error) {
	return f(ctx, req)
}

// Client implements Source on top of a fetcher.
type Client struct {
	f           fetcher.Fetcher
	otpURL      string
	downloadURL string
}

// NewClient creates a Client posting OTP requests to otpURL and downloads to downloadURL.
func NewClient(f fetcher.Fetcher, otpURL, downloadURL string) *Client {
	return &Client{f: f, otpURL: otpURL, downloadURL: downloadURL}
}

// Fetch exchanges req for an OTP, downloads the payload and decodes it.
func (c *Client) Fetch(ctx context.Context, req Request) (*fetcher.Table, error) {
	target := req.Screen.ID()

	otp, err := c.post(ctx, c.otpURL, req.Form(), target)
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(string(otp))
	if token == "" {
		return nil, &resilience.DecodeError{Target: target, Err: eris.New("krx: empty OTP token")}
	}

	body, err := c.post(ctx, c.downloadURL, url.Values{"code": {token}}, target)
	if err != nil {
		return nil, err
	}

	table, err := fetcher.ReadTable(ctx, body, fetcher.CSVOptions{
		Encoding:   korean.EUCKR,
		LazyQuotes: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "krx: decode")
		}
		return nil, &resilience.DecodeError{Target: target, Err: err}
	}

	zap.L().Debug("krx: fetched",
		zap.String("screen", target),
		zap.Int("rows", table.Len()),
	)
	return table, nil
}

// post performs one exchange and classifies its failure. A denial marker in
// the body wins over the status code.
func (c *Client) post(ctx context.Context, rawURL string, form url.Values, target string) ([]byte, error) {
	body, err := c.f.PostForm(ctx, rawURL, form)
	if bytes.Contains(body, []byte(DeniedMarker)) {
		return nil, &resilience.AccessDeniedError{Target: target}
	}
	if err == nil {
		return body, nil
	}

	var se *fetcher.StatusError
	switch {
	case errors.As(err, &se):
		return nil, &resilience.SourceError{Target: target, Err: err}
	case resilience.IsTimeout(err):
		return nil, &resilience.TimeoutError{Target: target, Err: err}
	case ctx.Err() != nil:
		return nil, eris.Wrapf(ctx.Err(), "krx: %s", target)
	default:
		return nil, &resilience.SourceError{Target: target, Err: err}
	}
}
