package attribute

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSchema    = errors.New("invalid schema")
	ErrInvalidCast      = errors.New("invalid cast")
	ErrInvalidEnumValue = errors.New("invalid enum value")
	ErrInvalidPath      = errors.New("invalid attribute path")
	ErrStageNotFound    = errors.New("pipeline stage not found")
	ErrDuplicateStage   = errors.New("pipeline stage already installed")
)

func newCastError(key string, kind CastKind, value any, err error) error {
	if err != nil {
		return fmt.Errorf("%w: cannot cast attribute '%s' (%T) to %s: %w", ErrInvalidCast, key, value, kind, err)
	}
	return fmt.Errorf("%w: cannot cast attribute '%s' (%T) to %s", ErrInvalidCast, key, value, kind)
}
