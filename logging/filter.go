package logging

// FilterResult is the verdict of a LogFilter.
type FilterResult int

const (
	Drop FilterResult = iota
	Keep
)

// LogFilter decides whether an event continues down a FilteringSink.
type LogFilter func(LogEvent) FilterResult

// ThresholdFilter keeps events at minLevel or above.
func ThresholdFilter(minLevel Level) LogFilter {
	return func(ev LogEvent) FilterResult {
		if ev.Level >= minLevel {
			return Keep
		}
		return Drop
	}
}

// DiscreteFilter keeps exactly the events whose level is listed. With no
// levels it keeps nothing.
func DiscreteFilter(levels ...Level) LogFilter {
	allowed := make(map[Level]struct{}, len(levels))
	for _, l := range levels {
		allowed[l] = struct{}{}
	}
	return func(ev LogEvent) FilterResult {
		if _, ok := allowed[ev.Level]; ok {
			return Keep
		}
		return Drop
	}
}
