package geode

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks fatal setup errors: invalid axis rules, degenerate
	// reduction domains, mappings that fail to cover an output axis, weights
	// defined outside the reduced axes and incompatible axis families.
	ErrConfiguration = errors.New("configuration error")
	// ErrResource marks arrays driven together that disagree in shape or
	// axis order.
	ErrResource = errors.New("resource error")
	// ErrAxisNotFound is returned by axis lookups by name.
	ErrAxisNotFound = errors.New("axis not found")
)

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func resourceErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrResource, fmt.Sprintf(format, args...))
}
