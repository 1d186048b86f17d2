// Package parse turns the string forms of durations, byte sizes and integers
// accepted in flags, environment variables and request headers into validated
// values.
//
// Every parser is a pure function: it either returns a value or an error
// wrapping one of the sentinel errors below, so callers can classify failures
// with errors.Is.
package parse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidDuration is returned for strings that are neither an ISO-8601
	// duration nor a non-negative millisecond count.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidSize is returned for malformed, negative or unknown-unit sizes.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidInteger is returned for strings that are not base-10 integers.
	ErrInvalidInteger = errors.New("invalid integer")
)

// Int parses a base-10 integer. Surrounding whitespace is ignored, anything
// else (signs are allowed) must be digits.
func Int(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidInteger)
	}

	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInteger, s)
	}
	return n, nil
}

// NonNegativeInt parses s with Int and rejects negative values.
func NonNegativeInt(s string) (int64, error) {
	n, err := Int(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidInteger, s)
	}
	return n, nil
}
