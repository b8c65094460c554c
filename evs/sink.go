package evs

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives every event that passes its filter
type Sink interface {
	Write(ev Event)
}

// LogSink writes events to a zerolog logger
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink logging under the "evs" component
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "evs").Logger()}
}

// Write logs the event at a level matching its type
func (s *LogSink) Write(ev Event) {
	var e *zerolog.Event
	switch ev.Type {
	case EventDebug:
		e = s.log.Debug()
	case EventError:
		e = s.log.Error()
	case EventCritical:
		e = s.log.WithLevel(zerolog.FatalLevel)
	default:
		e = s.log.Info()
	}
	e.Str("app", ev.App).
		Uint16("event_id", uint16(ev.ID)).
		Str("type", ev.Type.String()).
		Msg(ev.Message)
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Write records the event
func (r *Recorder) Write(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events with the given id were recorded
func (r *Recorder) Count(id EventID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.ID == id {
			n++
		}
	}
	return n
}

// Last returns the most recent event
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset drops every recorded event
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
