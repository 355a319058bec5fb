// Package fetch retrieves still snapshot images from an HTTP camera
// endpoint or a local file path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"
)

// Error wraps a failed snapshot fetch. Timeout reports whether the
// failure was a deadline, which the loop logs differently from a hard
// failure.
type Error struct {
	URL     string
	Err     error
	timeout bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Timeout() bool {
	return e.timeout
}

// Fetcher retrieves one snapshot per call within a fixed timeout. A
// snapshot source is either an http(s) URL or a filesystem path, the
// latter mostly for bench setups and tests.
type Fetcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func New(url string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		url:     url,
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    1,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Fetch retrieves and decodes one snapshot. No side effects on failure.
func (f *Fetcher) Fetch(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if !strings.HasPrefix(f.url, "http://") && !strings.HasPrefix(f.url, "https://") {
		return f.fetchFile(f.url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &Error{URL: f.url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: f.url, Err: err, timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: f.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, &Error{URL: f.url, Err: fmt.Errorf("decode image: %w", err), timeout: isTimeout(err)}
	}
	return img, nil
}

func (f *Fetcher) fetchFile(path string) (image.Image, error) {
	file, err := os.Open(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return nil, &Error{URL: f.url, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &Error{URL: f.url, Err: fmt.Errorf("decode image: %w", err)}
	}
	return img, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
