package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

type errorResponse struct {
	Reason  domain.ErrorKind `json:"reason"`
	Message string           `json:"message"`
}

// statusForKind переводит вид ошибки в HTTP-статус.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindEmptyCart, domain.KindInvalidItems, domain.KindItemUnavailable,
		domain.KindQuantityOutOfRange, domain.KindInvalidStatus, domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindOrderNotFound, domain.KindMenuItemNotFound:
		return http.StatusNotFound
	case domain.KindIdempotencyConflict:
		return http.StatusConflict
	case domain.KindTokenUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody строит статус и тело ответа об ошибке. Детали внутренних ошибок наружу не отдаются.
func errorBody(err error) (int, errorResponse) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	switch kind {
	case domain.KindPersistenceFailure:
		message = "order could not be saved, please retry"
	case domain.KindTokenUnavailable:
		message = "order numbers are temporarily unavailable, please retry"
	case domain.KindInternal:
		message = "internal error"
	case domain.KindUnauthorized:
		message = domain.ErrUnauthorized.Error()
	case domain.KindItemUnavailable:
		var unavailable *domain.ItemUnavailableError
		if errors.As(err, &unavailable) {
			message = unavailable.Error()
		}
	}
	return status, errorResponse{Reason: kind, Message: message}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)

	entry := a.logger.WithError(err).WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"reason":     body.Reason,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	writeJSON(w, status, body)
}

func invalidRequest(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
}

func encodeJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(errorResponse{Reason: domain.KindInternal, Message: "failed to encode response"})
	}
	return data
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeRaw(w, status, encodeJSON(v))
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
