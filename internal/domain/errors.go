package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrAlreadyClaimed = errors.New("reward already claimed")
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
)

// Invalid-state refinements. Each one matches ErrInvalidState under errors.Is.
var (
	ErrMarketNotOpen     = fmt.Errorf("%w: market not open", ErrInvalidState)
	ErrAmountOutOfRange  = fmt.Errorf("%w: amount out of range", ErrInvalidState)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidState)
	ErrAlreadySettled    = fmt.Errorf("%w: market already settled", ErrInvalidState)
)
