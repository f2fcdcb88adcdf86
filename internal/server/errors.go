package server

import (
	"errors"
	"net/http"

	"github.com/zeusync/salvo/internal/core/battery"
)

var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrUnknownAction        = errors.New("unknown action")
	ErrBatchTooLarge        = errors.New("batch too large")
	ErrNoSolution           = errors.New("no firing solution")
	ErrListenerFailed       = errors.New("failed to create listener")
)

// statusFor maps an error to the HTTP status reported to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNoSolution), errors.Is(err, battery.ErrNoUnitsAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, battery.ErrNoTarget),
		errors.Is(err, battery.ErrNoUnitsSelected),
		errors.Is(err, battery.ErrSalvoInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrServerClosed), errors.Is(err, battery.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
