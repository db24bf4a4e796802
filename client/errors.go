package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"google.golang.org/api/googleapi"
)

var (
	// ErrQuotaExceeded matches API errors reporting exhausted quota
	ErrQuotaExceeded = quota.ErrQuotaExceeded

	// ErrNotFound matches API errors for missing channels, playlists or videos
	ErrNotFound = errors.New("resource not found")
)

var quotaReasons = []string{
	"quotaExceeded",
	"dailyLimitExceeded",
	"rateLimitExceeded",
	"userRateLimitExceeded",
}

var authReasons = []string{
	"keyInvalid",
	"keyExpired",
	"accessNotConfigured",
	"ipRefererBlocked",
	"authError",
}

// APIError is a classified remote failure
type APIError struct {
	Status  int
	Reason  string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("youtube api request failed: %v", e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("youtube api error %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets callers match classified errors against the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.IsQuota()
	case ErrNotFound:
		return e.IsNotFound()
	case quota.ErrInvalidCredential:
		return e.IsAuth()
	}
	return false
}

// IsQuota reports a 403 caused by exhausted quota
func (e *APIError) IsQuota() bool {
	return e.Status == http.StatusForbidden && slices.Contains(quotaReasons, e.Reason)
}

// IsAuth reports a rejected credential
func (e *APIError) IsAuth() bool {
	switch e.Status {
	case http.StatusUnauthorized:
		return true
	case http.StatusBadRequest, http.StatusForbidden:
		return slices.Contains(authReasons, e.Reason)
	}
	return false
}

// IsNotFound reports a missing resource
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsTransient reports a failure worth retrying: rate limiting, server
// errors and network failures that never produced a response.
func (e *APIError) IsTransient() bool {
	switch e.Status {
	case 0, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// billed reports whether the remote service charged the call
func (e *APIError) billed() bool {
	return e.Status != 0 && !e.IsTransient()
}

// Classify converts any error returned by the API client into an APIError.
// nil is returned unchanged, and so is any error once ctx is done. A
// deadline hit by the HTTP client while ctx is still live is a network
// failure like any other.
func Classify(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		out := &APIError{
			Status:  gErr.Code,
			Message: gErr.Message,
			Err:     err,
		}
		if len(gErr.Errors) > 0 {
			out.Reason = gErr.Errors[0].Reason
			if out.Message == "" {
				out.Message = gErr.Errors[0].Message
			}
		}
		return out
	}

	return &APIError{Err: err}
}
