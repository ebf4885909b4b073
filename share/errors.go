package share

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a missing share, item, environment or membership
// record. It is fatal to the whole run: no per-item processing is
// meaningful when the declared target context is invalid.
var ErrNotFound = errors.New("not found")

// NotFoundError carries the kind and key of the missing record and wraps
// ErrNotFound so callers can test with errors.Is.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NewNotFoundError(kind string, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// BatchRevokeError aggregates the non-benign failures of a chunked batch
// revoke.
type BatchRevokeError struct {
	Failures []RevokeFailure
}

func (e *BatchRevokeError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", f.EntryID, f.Message, f.ErrorCode))
	}

	return fmt.Sprintf("batch revoke ended with %d failures: %s", len(e.Failures), strings.Join(parts, "; "))
}

// isBenignRevokeFailure reports whether a per-entry revoke failure means
// the grant was already gone. The catalog authority reports these as input
// errors rather than as success.
func isBenignRevokeFailure(f RevokeFailure) bool {
	if f.ErrorCode != "InvalidInputException" {
		return false
	}

	return strings.Contains(f.Message, "Grantee has no permissions") ||
		strings.Contains(f.Message, "No permissions revoked")
}
