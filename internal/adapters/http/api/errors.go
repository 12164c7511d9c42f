package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/adapters/ledger"
	"github.com/okian/growth/internal/adapters/mq/queue"
	service "github.com/okian/growth/internal/app"
	"github.com/okian/growth/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrCaller       = errors.New("missing or invalid caller")
)

// NewKind tags kind with the failing operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags err with kind and the failing operation.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// classify maps a domain error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrCaller),
		errors.Is(err, model.ErrShapeMismatch),
		errors.Is(err, model.ErrInvalidRegistry),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, service.ErrCounterOverflow):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, ledger.ErrAccountExists),
		errors.Is(err, assets.ErrExists),
		errors.Is(err, assets.ErrCollectionMismatch):
		return http.StatusConflict, "conflict"
	case errors.Is(err, queue.ErrFull), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrClosed), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
