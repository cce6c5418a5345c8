package requester

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is returned when no HTTP response was received
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpstreamError is returned when the endpoint answered with a non-2xx status
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("upstream error: %d %s - %s", e.Status, http.StatusText(e.Status), e.Body)
}

// RetryTransient retries connection failures, 429 and 5xx. Other 4xx
// statuses mean the request itself is wrong and resending cannot help.
func RetryTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Status == http.StatusTooManyRequests || (upErr.Status >= 500 && upErr.Status < 600)
	}
	return false
}

// RetryRateLimitOnly retries connection failures and 429 only
func RetryRateLimitOnly(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.Status == http.StatusTooManyRequests
}

// RetryAnyFailure retries every failure that produced a typed error
func RetryAnyFailure(err error) bool {
	var netErr *NetworkError
	var upErr *UpstreamError
	return errors.As(err, &netErr) || errors.As(err, &upErr)
}
