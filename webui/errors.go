package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"toolbox_backend/credits"
	"toolbox_backend/db"
	"toolbox_backend/mirror"
	"toolbox_backend/shutdown"
	"toolbox_backend/variation"
)

// Errors the handlers and the auth package return for the HTTP mapping.
var (
	ErrUnauthorized    = errors.New("authentication required")
	ErrForbidden       = errors.New("admin role required")
	ErrPendingApproval = errors.New("pending approval")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyAttempts = errors.New("too many login attempts")
	ErrUploadTooLarge  = errors.New("upload too large")
)

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps an error to its HTTP status.
//
//	quota exhausted              429
//	safety block, bad input      400
//	no session                   401
//	not admin, pending approval  403
//	provider failure             502
//	mirror not configured        503
func StatusFor(err error) int {
	switch {
	case errors.Is(err, credits.ErrQuotaExhausted), errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, mirror.ErrSafetyBlocked),
		errors.Is(err, mirror.ErrInvalidRequest),
		errors.Is(err, variation.ErrInvalidCount),
		errors.Is(err, variation.ErrInvalidLevel),
		errors.Is(err, variation.ErrDecodeSource),
		errors.Is(err, db.ErrDuplicateEmail),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUploadTooLarge), errors.Is(err, variation.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrPendingApproval):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mirror.ErrUpstream), errors.Is(err, mirror.ErrNoImage):
		return http.StatusBadGateway
	case errors.Is(err, mirror.ErrNotConfigured), errors.Is(err, shutdown.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the text sent to the client. Internal errors are not
// echoed.
func messageFor(err error, status int) string {
	switch {
	case errors.Is(err, mirror.ErrSafetyBlocked):
		return mirror.SafetyMessage
	case errors.Is(err, credits.ErrQuotaExhausted):
		return "daily image credits exhausted"
	case errors.Is(err, ErrPendingApproval):
		return ErrPendingApproval.Error()
	case errors.Is(err, mirror.ErrNoImage):
		return "the image service returned no image"
	case errors.Is(err, mirror.ErrUpstream):
		return "the image service failed"
	case errors.Is(err, mirror.ErrNotConfigured):
		return "image transform is not configured"
	case status == http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}

// WriteError writes err as {"error": msg} with the mapped status. Server
// errors are logged.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	WriteJSON(w, status, errorResponse{Error: messageFor(err, status)})
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields. A body
// cut off by http.MaxBytesReader yields ErrUploadTooLarge.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
