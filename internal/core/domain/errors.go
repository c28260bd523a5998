package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProviderAuth      = errors.New("provider authentication failed")
	ErrProviderRateLimit = errors.New("provider rate limit exceeded")
	ErrProviderQuota     = errors.New("provider quota exhausted")
	ErrProvider          = errors.New("provider failure")
	ErrEmptyQuery        = errors.New("empty query")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCacheUnavailable  = errors.New("cache unavailable")
	ErrRerankUnavailable = errors.New("reranker unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode maps an error to the stable code surfaced to callers.
func ErrorCode(err error) string {
	switch {
	case IsKind(err, ErrProviderAuth):
		return "provider_auth_error"
	case IsKind(err, ErrProviderRateLimit):
		return "provider_rate_limit"
	case IsKind(err, ErrProviderQuota):
		return "provider_quota_exceeded"
	case IsKind(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case IsKind(err, ErrEmptyQuery):
		return "empty_query"
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrTemporary):
		return "temporary_failure"
	case IsKind(err, ErrProvider):
		return "provider_error"
	default:
		return "internal_error"
	}
}
