package logging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrUnknownLevel is returned when a level name is not recognized.
var ErrUnknownLevel = errors.New("unknown log level")

// Level is the severity of a LogEvent. Levels are ordered; LevelOff ranks
// above every real level and is only meaningful as a threshold.
type Level int8

const (
	LevelDebug Level = iota
	LevelQuery
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelQuery: "query",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelOff:   "off",
}

// Levels returns every level an event can carry, lowest first.
func Levels() []Level {
	return []Level{LevelDebug, LevelQuery, LevelInfo, LevelWarn, LevelError}
}

func (l Level) String() string {
	if l < LevelDebug || l > LevelOff {
		return fmt.Sprintf("level(%d)", int8(l))
	}
	return levelNames[l]
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLevel parses the name of an event level. "off" is rejected.
func ParseLevel(s string) (Level, error) {
	l, err := ParseLogLevel(s)
	if err != nil {
		return 0, err
	}
	if l == LevelOff {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
	return l, nil
}

// ParseLogLevel parses a configured minimum level, accepting "off".
func ParseLogLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for l, n := range levelNames {
		if n == name {
			return Level(l), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}
