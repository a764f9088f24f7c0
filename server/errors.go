package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/query"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusOf maps an action error to an HTTP status and error code.
func statusOf(err error) (int, string, string) {
	var (
		ve *query.ValidationError
		ce *query.ConfigurationError
		be *query.BackendError
		fe *query.FieldError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error", ve.Field
	case errors.Is(err, query.ErrNotFound):
		field := ""
		if errors.As(err, &fe) {
			field = fe.Field
		}
		return http.StatusNotFound, "not_found", field
	case errors.As(err, &ce):
		return http.StatusBadRequest, "configuration_error", ce.Key
	case errors.As(err, &be):
		if be.Timeout() {
			return http.StatusGatewayTimeout, "backend_timeout", ""
		}
		return http.StatusBadGateway, "backend_error", ""
	}
	return http.StatusInternalServerError, "internal_error", ""
}

func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, field := statusOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("catalog request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
		message = http.StatusText(status)
	}
	writeError(w, r, status, code, message, field)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, field string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      code,
		Message:   message,
		Field:     field,
		RequestID: RequestIDFrom(r.Context()),
	}})
}
