package httpadapter

import (
	"net/http"

	"github.com/asafonov/docqa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrEmptyQuery), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrProviderRateLimit):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrProviderAuth),
		domain.IsKind(err, domain.ErrProviderQuota),
		domain.IsKind(err, domain.ErrProvider):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
