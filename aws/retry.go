package aws

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/smithy-go"
)

// withRetry runs op with exponential backoff on throttling and eventual
// consistency errors. Non-retryable errors return immediately.
func withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
	)
}

func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ConcurrentModificationException", "OperationTimeoutException":
		return true
	}

	return false
}

// errorCode extracts the vendor error code, or "" for non-API errors.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	return ""
}
