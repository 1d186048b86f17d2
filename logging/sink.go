package logging

import "sync"

// Sink receives log events.
type Sink interface {
	Write(LogEvent)
}

// DroppingSink discards every event.
type DroppingSink struct{}

func (DroppingSink) Write(LogEvent) {}

// CompositeSink forwards every event to each of its sinks in order.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink returns a sink fanning out to sinks. Nil sinks are skipped.
func NewCompositeSink(sinks ...Sink) *CompositeSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &CompositeSink{sinks: out}
}

func (c *CompositeSink) Write(ev LogEvent) {
	for _, s := range c.sinks {
		s.Write(ev)
	}
}

// FilteringSink forwards the events its filter keeps.
type FilteringSink struct {
	sink   Sink
	filter LogFilter
}

func NewFilteringSink(sink Sink, filter LogFilter) *FilteringSink {
	return &FilteringSink{sink: sink, filter: filter}
}

func (f *FilteringSink) Write(ev LogEvent) {
	if f.filter(ev) == Keep {
		f.sink.Write(ev)
	}
}

// CapturingSink keeps every event in memory so it can be returned with the
// response of the request that produced it.
type CapturingSink struct {
	mu     sync.Mutex
	events []LogEvent
}

func NewCapturingSink() *CapturingSink {
	return &CapturingSink{}
}

func (c *CapturingSink) Write(ev LogEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of the captured events.
func (c *CapturingSink) Events() []LogEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]LogEvent, len(c.events))
	copy(out, c.events)
	return out
}

// ExportedEvents returns the captured events in wire form.
func (c *CapturingSink) ExportedEvents() []ExportedEvent {
	events := c.Events()
	out := make([]ExportedEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Export())
	}
	return out
}
