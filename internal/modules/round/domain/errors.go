package domain

import "errors"

// Validation errors surfaced by store transitions. The betting pipeline maps
// these to user-facing reasons.
var (
	ErrBettingClosed   = errors.New("betting window closed")
	ErrRoundInProgress = errors.New("round in progress")
	ErrRoundSettled    = errors.New("round settled")
	ErrRoundNotOpen    = errors.New("round not open")
	ErrZoneLocked      = errors.New("another zone already staged")
	ErrOverMaxLimit    = errors.New("bet exceeds table maximum")
)

// StatusError returns the staging error for a round status that does not
// admit bets. StatusUnknown admits bets (missing telemetry must not block
// the user; the backend is the final arbiter).
func StatusError(status RoundStatus) error {
	switch status {
	case StatusUnknown, StatusBettingOpen:
		return nil
	case StatusFighting:
		return ErrRoundInProgress
	case StatusSettled:
		return ErrRoundSettled
	default:
		return ErrRoundNotOpen
	}
}
