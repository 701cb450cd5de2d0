package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quka-ai/kbcore/pkg/types"
)

const (
	USER_AGENT = "KBCore-Fetcher/1.0 (+knowledge-base monitor)"

	DEFAULT_TIMEOUT = 30 * time.Second
	// 单个页面最多读取 10MB
	maxBodyBytes = 10 << 20
	maxRedirects = 10
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Page is a fetched document.
type Page struct {
	URL          string
	Body         string
	ContentType  string
	LastModified string
}

// Fetcher 网页抓取器
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Fetch issues a plain GET and returns the body of a 2xx response.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Page{
		URL:          url,
		Body:         string(body),
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// CheckStatus maps a Fetch error to a monitor check status.
func CheckStatus(err error) string {
	if err == nil {
		return types.CHECK_STATUS_OK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return types.CheckStatusHTTP(se.Code)
	}
	if IsTimeout(err) {
		return types.CHECK_STATUS_ERROR_TIMEOUT
	}
	return types.CHECK_STATUS_ERROR_CONNECTION
}

func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
