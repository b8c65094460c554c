package rosapp

import "github.com/najoast/rosapp/evs"

// Event ids
const (
	ReservedEID        evs.EventID = 0
	StartupInfEID      evs.EventID = 1
	CommandErrEID      evs.EventID = 2
	CommandNopInfEID   evs.EventID = 3
	CommandRstInfEID   evs.EventID = 4
	InvalidMsgIDErrEID evs.EventID = 5
	LenErrEID          evs.EventID = 6
	PipeErrEID         evs.EventID = 7
	HelloWorldInfEID   evs.EventID = 8
)

// EventCounts is the number of event ids in use
const EventCounts = 8

// DefaultEventFilters returns the binary filters registered at startup.
// Every filter passes all events.
func DefaultEventFilters() []evs.BinFilter {
	ids := []evs.EventID{
		StartupInfEID,
		CommandErrEID,
		CommandNopInfEID,
		CommandRstInfEID,
		InvalidMsgIDErrEID,
		LenErrEID,
		PipeErrEID,
	}

	filters := make([]evs.BinFilter, len(ids))
	for i, id := range ids {
		filters[i] = evs.BinFilter{EventID: id, Mask: evs.NoFilter}
	}
	return filters
}
