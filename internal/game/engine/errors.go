package engine

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/ascend/internal/game/guard"
)

var (
	// ErrMaxLevelReached is returned when the entity cannot be upgraded further.
	ErrMaxLevelReached = errors.New("max level reached")
	// ErrInsufficientFunds is returned when the balance does not cover a charge.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotSellable is returned when selling a level 0 entity.
	ErrNotSellable = errors.New("entity not sellable")
	// ErrUnknownAction is returned by Dispatch for an unrecognised action.
	ErrUnknownAction = errors.New("unknown action")

	// Admission errors, re-exported so callers need only this package.
	ErrServerOverloaded = guard.ErrServerOverloaded
	ErrTooFast          = guard.ErrTooFast
	ErrFlagged          = guard.ErrFlagged
)

// Reason names a rejection kind on the wire.
type Reason string

const (
	ReasonOverloaded        Reason = "server_overloaded"
	ReasonTooFast           Reason = "too_fast"
	ReasonFlagged           Reason = "flagged"
	ReasonMaxLevel          Reason = "max_level_reached"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonNotSellable       Reason = "not_sellable"
)

// RejectionError is returned for every refused action. No game state is
// changed when an action is rejected.
type RejectionError struct {
	Reason Reason `json:"reason"`
	// Required and Balance are set for ReasonInsufficientFunds.
	Required int64 `json:"required,omitempty"`
	Balance  int64 `json:"balance,omitempty"`
	Err      error `json:"-"`
}

func (e *RejectionError) Error() string {
	if e.Reason == ReasonInsufficientFunds {
		return fmt.Sprintf("%v: need %d, have %d", e.Err, e.Required, e.Balance)
	}
	return e.Err.Error()
}

func (e *RejectionError) Unwrap() error { return e.Err }

// admissionRejection maps a guard error onto a RejectionError.
func admissionRejection(err error) error {
	switch {
	case errors.Is(err, guard.ErrServerOverloaded):
		return &RejectionError{Reason: ReasonOverloaded, Err: err}
	case errors.Is(err, guard.ErrTooFast):
		return &RejectionError{Reason: ReasonTooFast, Err: err}
	case errors.Is(err, guard.ErrFlagged):
		return &RejectionError{Reason: ReasonFlagged, Err: err}
	}
	return err
}

func insufficient(required, balance int64) error {
	return &RejectionError{Reason: ReasonInsufficientFunds, Required: required, Balance: balance, Err: ErrInsufficientFunds}
}
