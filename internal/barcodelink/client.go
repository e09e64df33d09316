// client.go - Barcode Linking Client (C3), spec.md §4.5's "Linking"
// paragraph. Circuit breaker settings shape grounded on the
// gobreaker.Settings{MaxRequests, Interval, Timeout, ReadyToTrip,
// OnStateChange} usage in the pack's jordigilh-kubernaut integration suite,
// adapted from a controller-reconcile circuit to a single external-RPC
// client guarding a barcode validation endpoint.
package barcodelink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/visualaoi/inspector/internal/common"
)

// Client POSTs a raw barcode value to an external linking service and
// returns the canonical value, falling back to the original on any
// unavailability per spec.md §4.5.
type Client struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	enabled bool
}

// New constructs a linking client. If url is empty or enabled is false, Link
// always returns the fallback immediately without any network call.
func New(url string, timeout time.Duration, enabled bool, breakerMaxFails uint32, breakerResetTimeout time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "barcode-link",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[barcodelink] circuit %s: %s -> %s", name, from, to)
		},
	})

	return &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		enabled: enabled && url != "",
	}
}

// Link invokes the external linking endpoint for one scalar raw barcode
// value. It never returns an error to the caller - every failure mode
// (disabled, breaker open, timeout, non-2xx, transport error, empty body,
// literal "null") resolves to (raw, false), the documented fallback.
func (c *Client) Link(ctx context.Context, priority int, raw string) (canonical string, linked bool) {
	if !c.enabled {
		log.Printf("[P%d] %s (linking not applied)", priority, raw)
		return raw, false
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, raw)
	})
	if err != nil {
		log.Printf("[P%d] %s (linking not applied): %v", priority, raw, err)
		return raw, false
	}

	body := result.(string)
	stripped := stripQuotes(body)
	if stripped == "" || stripped == "null" {
		log.Printf("[P%d] %s (linking not applied)", priority, raw)
		return raw, false
	}

	log.Printf("[P%d] %s -> %s", priority, raw, stripped)
	return stripped, true
}

func (c *Client) post(ctx context.Context, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(raw))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", common.ErrLinkUnavailable, err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrLinkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", common.ErrLinkUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", common.ErrLinkUnavailable, err)
	}
	return string(body), nil
}

// stripQuotes removes exactly one outer matching pair of double quotes, per
// spec.md §4.5 ("the response may be wrapped in double quotes").
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
