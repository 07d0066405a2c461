package network

import (
	"context"
	"net/http"
	"time"
)

// Checker answers whether the remote side is reachable right now.
type Checker interface {
	Reachable(ctx context.Context) bool
}

// HTTPChecker probes a URL with HEAD. Any HTTP response, whatever its
// status, means the network path is up.
type HTTPChecker struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPChecker) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
