package ladder

import (
	"errors"
	"fmt"
)

// Errors returned by Apply are preallocated so the hot path never allocates.
var (
	// ErrPriceOutOfWindow means the price cannot be represented even after
	// re-anchoring: it is a full capacity away from the best live level.
	ErrPriceOutOfWindow = errors.New("ladder: price out of window")

	// ErrCapacityExceeded means the price could be placed only by dropping
	// live levels, i.e. the live spread is wider than the capacity.
	ErrCapacityExceeded = errors.New("ladder: live spread exceeds capacity")

	ErrInvalidQuantity  = errors.New("ladder: invalid quantity")
	ErrQuantityOverflow = fmt.Errorf("%w: total overflows", ErrInvalidQuantity)
	ErrUnknownOp        = errors.New("ladder: unknown op")
	ErrInvalidCapacity  = errors.New("ladder: capacity must be a power of two")
	ErrInvalidSide      = errors.New("ladder: unknown side")
)
