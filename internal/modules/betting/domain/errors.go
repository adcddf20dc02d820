package domain

import (
	"errors"
	"fmt"

	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
)

// Local validation errors. These never reach the network and are always
// recoverable from the user's side.
var (
	ErrChipNotPositive     = errors.New("chip value must be positive")
	ErrMissingRound        = errors.New("table or round not resolved")
	ErrBelowMinimum        = errors.New("total below table minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConfirmInFlight     = errors.New("a confirmation is already in flight")
	ErrInvalidZone         = errors.New("unknown betting zone")
)

// Backend rejection codes, as returned in the response envelope.
const (
	CodeOK                  = 0
	CodeInsufficientBalance = 1001
	CodeRoundNotOpen        = 1002
	CodeTableClosed         = 1003
	CodeSessionExpired      = 1004
	CodeOddsChanged         = 1005
	CodeAmountOutOfRange    = 1006
)

// BackendError is a structured rejection from the backend.
type BackendError struct {
	Code    int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected (code %d): %s", e.Code, e.Message)
}

// IsOddsChanged reports whether err is the odds-changed rejection, which is
// retried exactly once before surfacing.
func IsOddsChanged(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Code == CodeOddsChanged
}

// IsSessionExpired reports whether err is the session-expired rejection
func IsSessionExpired(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Code == CodeSessionExpired
}

// Reason maps any pipeline error to a user-facing reason string.
func Reason(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		switch be.Code {
		case CodeInsufficientBalance:
			return "insufficient balance"
		case CodeRoundNotOpen:
			return "round is not open for betting"
		case CodeTableClosed:
			return "table is closed"
		case CodeSessionExpired:
			return "session expired, please sign in again"
		case CodeOddsChanged:
			return "odds changed, please try again"
		case CodeAmountOutOfRange:
			return "bet amount out of range"
		default:
			return "bet rejected"
		}
	}

	switch {
	case errors.Is(err, ErrChipNotPositive):
		return "chip value must be positive"
	case errors.Is(err, rounddomain.ErrBettingClosed):
		return "betting closed"
	case errors.Is(err, rounddomain.ErrRoundInProgress):
		return "round in progress"
	case errors.Is(err, rounddomain.ErrRoundSettled):
		return "round settled"
	case errors.Is(err, rounddomain.ErrRoundNotOpen):
		return "round not open"
	case errors.Is(err, rounddomain.ErrZoneLocked):
		return "finish your current zone first"
	case errors.Is(err, rounddomain.ErrOverMaxLimit):
		return "bet exceeds table maximum"
	case errors.Is(err, ErrMissingRound):
		return "round not ready, please wait"
	case errors.Is(err, ErrBelowMinimum):
		return "total below table minimum"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient balance"
	case errors.Is(err, ErrConfirmInFlight):
		return "submission already in progress"
	case errors.Is(err, ErrInvalidZone):
		return "unknown betting zone"
	default:
		return "bet failed"
	}
}
