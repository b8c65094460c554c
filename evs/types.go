// Package evs provides event services: per-application binary event
// filtering, a bounded local event log and pluggable event sinks.
package evs

import (
	"errors"
	"fmt"
	"time"
)

// EventID identifies an event within one application
type EventID uint16

// EventType classifies an event
type EventType uint8

const (
	EventDebug EventType = iota + 1
	EventInformation
	EventError
	EventCritical
)

// String returns the string representation of EventType
func (t EventType) String() string {
	switch t {
	case EventDebug:
		return "DEBUG"
	case EventInformation:
		return "INFO"
	case EventError:
		return "ERROR"
	case EventCritical:
		return "CRIT"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Binary filter masks. An event is sent when the filter count ANDed with
// the mask is zero.
const (
	NoFilter       uint16 = 0x0000
	FirstOneStop   uint16 = 0xFFFF
	FirstTwoStop   uint16 = 0xFFFE
	FirstFourStop  uint16 = 0xFFFC
	FirstEightStop uint16 = 0xFFF8
	EveryOtherOne  uint16 = 0x0001
	EveryOtherTwo  uint16 = 0x0002
	EveryFourth    uint16 = 0x0003
)

// maxFilterCount is where filter counters stop incrementing
const maxFilterCount = 0xFFFF

// MaxMessageLength bounds the formatted event text
const MaxMessageLength = 122

// BinFilter registers a binary filter for one event id
type BinFilter struct {
	EventID EventID
	Mask    uint16
}

// Event is a formatted event as delivered to sinks
type Event struct {
	App     string
	ID      EventID
	Type    EventType
	Message string
	Time    time.Time
}

// Sender is the event interface seen by a component
type Sender interface {
	SendEvent(id EventID, typ EventType, format string, args ...any) error
}

// Event service errors
var (
	ErrEmptyAppName    = errors.New("evs: application name is empty")
	ErrTooManyFilters  = errors.New("evs: too many event filters")
	ErrDuplicateFilter = errors.New("evs: duplicate event filter")
	ErrUnknownFilter   = errors.New("evs: event id has no filter")
	ErrNotRegistered   = errors.New("evs: application not registered")
)
