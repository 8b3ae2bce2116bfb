package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingAPIKey is a configuration error: the provider needs a key and none was set.
	ErrMissingAPIKey = errors.New("llm api key not configured")
	// ErrInvalidResponse means the provider answered 2xx without a usable choice.
	ErrInvalidResponse = errors.New("invalid chat completion response structure")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm api error: %s", e.Status)
	}
	return fmt.Sprintf("llm api error: %s: %s", e.Status, truncate(e.Body, 512))
}

// RateLimited reports whether the provider asked us to slow down.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimited reports whether err carries a 429 from the provider.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.RateLimited()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
