package httpadapter

import (
	"net/http"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrRecordNotFound), domain.IsKind(err, domain.ErrPolicyNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrBatchInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUnsupportedCapability):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
