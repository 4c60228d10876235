// Package httpx holds the JSON request and response helpers shared by the
// service handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 2 << 20

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to write response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteAppError maps err onto its status code. Validation errors carry their
// fields; server-side failures get a generic message so driver details stay
// in the logs.
func WriteAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)

	var validation *apperrors.ValidationError
	if errors.As(err, &validation) {
		WriteJSON(w, status, map[string]any{
			"error":  "validation failed",
			"fields": validation.Fields,
		})
		return
	}
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr) && status < http.StatusInternalServerError:
		WriteError(w, status, appErr.Message)
	case status < http.StatusInternalServerError:
		WriteError(w, status, err.Error())
	default:
		WriteError(w, status, http.StatusText(status))
	}
}

// DecodeJSON reads one JSON value from the request body into v. Malformed
// or oversized bodies yield a ValidationError on the "body" field.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidation("body", "invalid JSON body")
	}
	return nil
}

// QueryInt parses a non-negative integer query parameter, returning def when
// it is absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidation(name, "must be a non-negative integer")
	}
	return n, nil
}

// QueryBool reports whether a flag parameter is set to a truthy value.
func QueryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
