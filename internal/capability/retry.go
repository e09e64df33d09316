// retry.go - retry/backoff wrapper around Gemini API calls, adapted from the
// teacher's internal/ai/gemini_retry.go: same error categorization (status
// code -> retryable/not) and exponential backoff, generalized from a
// receipt-extraction call site (model.GenerateContent(prompt, image) with a
// RequestContext logger) to any GeminiOCRProvider/GeminiFeatureExtractor call
// (plain log.Printf, since this module's InspectionContext is scoped to one
// inspection, not one capability call).
package capability

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// retryConfig controls callWithRetry's backoff.
type retryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

var defaultRetryConfig = retryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// geminiError categorizes a Gemini API failure so callWithRetry knows
// whether retrying can help.
type geminiError struct {
	category   string
	statusCode int
	message    string
	retryable  bool
}

func (e *geminiError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.category, e.message, e.statusCode, e.retryable)
}

func categorizeGeminiError(err error) *geminiError {
	ge := &geminiError{category: "unknown", message: err.Error()}

	if apiErr, ok := err.(*googleapi.Error); ok {
		ge.statusCode = apiErr.Code
		switch apiErr.Code {
		case 429:
			ge.category, ge.retryable = "rate_limit", true
		case 500, 502, 503, 504:
			ge.category, ge.retryable = "server_error", true
		default:
			ge.category = "api_error"
			ge.retryable = apiErr.Code >= 500
		}
		return ge
	}

	if err == context.DeadlineExceeded {
		return &geminiError{category: "timeout", message: "request timeout", retryable: true}
	}
	if err == context.Canceled {
		return &geminiError{category: "canceled", message: "request canceled", retryable: false}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		ge.category, ge.retryable = "quota_exceeded", false
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		ge.category, ge.retryable = "timeout", true
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		ge.category, ge.retryable = "network_error", true
	}
	return ge
}

// callWithRetry runs call, retrying transient failures (rate limits, 5xx,
// network errors) with exponential backoff. Non-retryable errors (bad
// request, auth, quota) fail immediately.
func callWithRetry(ctx context.Context, call func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr *geminiError

	for attempt := 1; attempt <= defaultRetryConfig.MaxAttempts; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}

		lastErr = categorizeGeminiError(err)
		if !lastErr.retryable || attempt >= defaultRetryConfig.MaxAttempts {
			return nil, lastErr
		}

		delay := backoffDelay(attempt)
		if lastErr.category == "rate_limit" {
			delay *= 2
		}
		log.Printf("capability: gemini call failed (%s), retrying in %s (attempt %d/%d)", lastErr.category, delay, attempt, defaultRetryConfig.MaxAttempts)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry wait canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func backoffDelay(attempt int) time.Duration {
	delay := float64(defaultRetryConfig.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= defaultRetryConfig.BackoffMultiple
	}
	if delay > float64(defaultRetryConfig.MaxDelay) {
		delay = float64(defaultRetryConfig.MaxDelay)
	}
	return time.Duration(delay)
}
