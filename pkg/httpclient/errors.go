package httpclient

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

// AsUpstreamError converts a transport error returned by a client built with
// New into an *apperrors.UpstreamError. display is the human name of the
// service used in messages ("NPPES", "EHR"). Context cancellation passes
// through unchanged.
func AsUpstreamError(service, display string, err error) error {
	if err == nil {
		return nil
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.Err != nil {
			return &apperrors.UpstreamError{
				Service:  service,
				Message:  fmt.Sprintf("Unable to connect to %s API: %v", display, exhausted.Err),
				Attempts: exhausted.Attempts,
				Cause:    err,
			}
		}
		return &apperrors.UpstreamError{
			Service:    service,
			StatusCode: exhausted.StatusCode,
			Message:    "Max retries exceeded",
			Attempts:   exhausted.Attempts,
			Cause:      err,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &apperrors.UpstreamError{
		Service:  service,
		Message:  fmt.Sprintf("Unable to connect to %s API: %v", display, err),
		Attempts: 1,
		Cause:    err,
	}
}

// StatusError builds the error for a non-2xx response that was not retried.
func StatusError(service, display string, status int, detail string) error {
	msg := fmt.Sprintf("%s API error: %d", display, status)
	if detail != "" {
		msg += ": " + detail
	}
	return &apperrors.UpstreamError{
		Service:    service,
		StatusCode: status,
		Message:    msg,
		Attempts:   1,
	}
}
