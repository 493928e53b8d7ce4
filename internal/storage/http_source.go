package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxFetchAttempts = 3
	maxImageBytes    = 64 << 20
)

// ErrImageTooLarge is returned when a download exceeds the size cap
var ErrImageTooLarge = errors.New("image exceeds download size limit")

// HTTPSource downloads images over http(s)
type HTTPSource struct {
	client   *http.Client
	backoff  time.Duration
	maxBytes int64
}

// NewHTTPSource creates an HTTP source. timeout bounds a whole attempt.
func NewHTTPSource(timeout time.Duration) *HTTPSource {
	transport := &http.Transport{
		MaxIdleConns:           4,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff:  time.Second,
		maxBytes: maxImageBytes,
	}
}

func (s *HTTPSource) Scheme() string { return SchemeHTTP }

// Open fetches ref, retrying transport failures and 5xx responses with a
// linear backoff. 4xx responses are not retried.
func (s *HTTPSource) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/bmp, */*")
		req.Header.Set("User-Agent", "Go-Vehicle-Counter/1.0")

		resp, err := s.client.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusOK:
			if resp.ContentLength > s.maxBytes {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: content length %d", ErrImageTooLarge, resp.ContentLength)
			}
			return &limitedBody{body: resp.Body, remaining: s.maxBytes}, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			resp.Body.Close()
			return nil, fmt.Errorf("client error: status code %d", resp.StatusCode)
		default:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxFetchAttempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * s.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", maxFetchAttempts, lastErr)
}

// limitedBody fails instead of truncating when the body runs past the cap,
// so a partial download is never staged as a complete image.
type limitedBody struct {
	body      io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var one [1]byte
		n, err := b.body.Read(one[:])
		if n > 0 {
			return 0, ErrImageTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.body.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.body.Close()
}
