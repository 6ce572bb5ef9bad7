package assessment

import (
	"errors"
	"fmt"
)

// Sentinel kinds for assessment errors.
var (
	ErrUnknownStrategy = errors.New("unknown calculation strategy")
)

// NewUnknownStrategy wraps ErrUnknownStrategy with the offending name so
// callers can both match the kind and report the input.
func NewUnknownStrategy(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}
