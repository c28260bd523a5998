package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/asafonov/docqa/internal/core/domain"
	"github.com/asafonov/docqa/internal/infrastructure/resilience"
)

func classifyProviderError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		// Auth, quota, and client errors never resolve by retrying and
		// must not trip the breaker.
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// mapProviderError converts transport failures into the typed provider
// errors the core matches on.
func mapProviderError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return domain.WrapError(domain.ErrProviderAuth, operation, err)
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrProviderRateLimit, operation, err)
		case statusErr.StatusCode == http.StatusPaymentRequired || strings.Contains(strings.ToLower(statusErr.Body), "quota"):
			return domain.WrapError(domain.ErrProviderQuota, operation, err)
		case isRetryableHTTPStatus(statusErr.StatusCode):
			return domain.WrapError(domain.ErrTemporary, operation, err)
		default:
			return domain.WrapError(domain.ErrProvider, operation, err)
		}
	}

	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrProvider, operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
