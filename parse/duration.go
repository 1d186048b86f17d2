package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoDurationRegex matches ISO-8601 durations such as P1DT2H, PT30S or
// PT0.5S. Years and months are rejected because their length is not fixed.
var isoDurationRegex = regexp.MustCompile(
	`^P(?:(\d+(?:\.\d+)?)W)?(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

var isoDurationUnits = []time.Duration{
	7 * 24 * time.Hour,
	24 * time.Hour,
	time.Hour,
	time.Minute,
	time.Second,
}

// Duration parses either an ISO-8601 duration ("PT5S", "P1DT12H") or a
// non-negative integer number of milliseconds ("5000").
//
// Example:
//
//	parse.Duration("PT1.5S") // 1500ms
//	parse.Duration("250")    // 250ms
func Duration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidDuration)
	}

	if trimmed[0] == 'P' || trimmed[0] == 'p' {
		return isoDuration(strings.ToUpper(trimmed), s)
	}

	ms, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, s)
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, s)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func isoDuration(upper, original string) (time.Duration, error) {
	m := isoDurationRegex.FindStringSubmatch(upper)
	// "P" and "PT" match the regex with every group empty.
	if m == nil || upper == "P" || strings.HasSuffix(upper, "T") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, original)
	}

	var total float64
	for i, unit := range isoDurationUnits {
		group := m[i+1]
		if group == "" {
			continue
		}
		v, err := strconv.ParseFloat(group, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, original)
		}
		total += v * float64(unit)
	}

	if total > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, original)
	}
	return time.Duration(math.Round(total)), nil
}
