package strategy

import "errors"

var (
	// ErrStrikeNotFound is returned when a leg cannot be resolved to a listed contract.
	ErrStrikeNotFound = errors.New("strike not found")
	// ErrNonCreditEntry is returned when the four legs would open for a net debit.
	ErrNonCreditEntry = errors.New("entry is not a net credit")
)
