package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"expenses/internal/core"
	"expenses/internal/currency"
	"expenses/internal/export"
	"expenses/internal/identity"
	"expenses/internal/log"
	"expenses/internal/report"
	"expenses/internal/session"
)

var errBadRequest = errors.New("bad request")

var badRequestErrors = []error{
	errBadRequest,
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrInvalidCategory,
	core.ErrInvalidCurrency,
	report.ErrInvalidRange,
	currency.ErrUnknownCurrency,
	identity.ErrEmptyName,
	identity.ErrInvalidMode,
	export.ErrUnsupportedFormat,
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes. Anything unrecognized,
// storage failures included, is a 500.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, identity.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Server errors are logged and
// their detail is withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := errorMessage(err)
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err,
			log.ComponentHTTP, r.Method+" "+r.URL.Path, log.NewFields().WithRequestID(log.RequestID(r.Context())))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func errorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "len":
			parts = append(parts, fmt.Sprintf("%s must be %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
