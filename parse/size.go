package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// sizeUnits maps lowercase unit suffixes to their multiplier. Decimal units
// are powers of 1000, binary ("i") units powers of 1024.
var sizeUnits = map[string]float64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

// Size parses a byte count: a plain integer ("1024") or a number with a unit
// suffix ("5KB", "1.5MiB", "10 GiB"). The result must be a whole number of
// bytes.
//
// Example:
//
//	parse.Size("2GB")    // 2_000_000_000
//	parse.Size("1.5MiB") // 1_572_864
func Size(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	m := sizeRegex.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	multiplier, ok := sizeUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, m[2])
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	bytes := v * multiplier
	if bytes > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
	}
	if bytes != math.Trunc(bytes) {
		return 0, fmt.Errorf("%w: %q is not a whole number of bytes", ErrInvalidSize, s)
	}
	return int64(bytes), nil
}
