package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"barberbook/backend/internal/service/scheduling"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func statusForKind(k scheduling.Kind) int {
	switch k {
	case scheduling.KindNotFound:
		return http.StatusNotFound
	case scheduling.KindUnauthorized:
		return http.StatusForbidden
	case scheduling.KindSlotUnavailable, scheduling.KindInvalidState, scheduling.KindIdempotencyConflict:
		return http.StatusConflict
	case scheduling.KindTooLate, scheduling.KindInvalidTime, scheduling.KindOutsideHours:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps engine errors onto the {code, message} envelope. Anything
// that is not a rejection or a validation failure is logged and hidden.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var sErr *scheduling.Error
	if errors.As(err, &sErr) {
		writeErrorBody(w, statusForKind(sErr.Kind), sErr.Kind.Code(), sErr.Message)
		return
	}
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", vErr.Error())
		return
	}
	h.log.ErrorContext(r.Context(), "request failed",
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("err", err),
	)
	writeErrorBody(w, http.StatusInternalServerError, "internal", "internal error")
}
