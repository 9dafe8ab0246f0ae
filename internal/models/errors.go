package models

import "errors"

// ErrInvalidWings is returned when a long leg does not sit strictly outside
// its short leg.
var ErrInvalidWings = errors.New("invalid iron condor wings")
