package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Invalidator drops a stock from the gateway's lookup cache
type Invalidator interface {
	Invalidate(ctx context.Context, name string) error
}

// HTTPInvalidator calls DELETE <baseURL>/delete/<name> on the gateway
type HTTPInvalidator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPInvalidator(baseURL string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPInvalidator) Invalidate(ctx context.Context, name string) error {
	target := h.baseURL + "/delete/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build invalidation request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache invalidation of %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("cache invalidation of %s answered %d", name, resp.StatusCode)
	}
	return nil
}
