package bus

import (
	"sync"

	"github.com/najoast/rosapp/msg"
)

// routeTable maps message ids to subscribed pipes in subscription order
type routeTable struct {
	mu sync.RWMutex

	routes map[msg.MsgID][]PipeID

	// Per message id sequence counters
	sequence map[msg.MsgID]uint16
}

func newRouteTable() *routeTable {
	return &routeTable{
		routes:   make(map[msg.MsgID][]PipeID),
		sequence: make(map[msg.MsgID]uint16),
	}
}

// add reports false when the pipe was already subscribed
func (r *routeTable) add(mid msg.MsgID, id PipeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.routes[mid] {
		if existing == id {
			return false
		}
	}
	r.routes[mid] = append(r.routes[mid], id)
	return true
}

func (r *routeTable) remove(mid msg.MsgID, id PipeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(mid, id)
}

func (r *routeTable) removeLocked(mid msg.MsgID, id PipeID) bool {
	dests := r.routes[mid]
	for i, existing := range dests {
		if existing != id {
			continue
		}
		dests = append(dests[:i:i], dests[i+1:]...)
		if len(dests) == 0 {
			delete(r.routes, mid)
		} else {
			r.routes[mid] = dests
		}
		return true
	}
	return false
}

// removePipe drops every subscription held by the pipe
func (r *routeTable) removePipe(id PipeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for mid := range r.routes {
		r.removeLocked(mid, id)
	}
}

// destinations returns a copy of the pipes subscribed to mid
func (r *routeTable) destinations(mid msg.MsgID) []PipeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dests := r.routes[mid]
	if len(dests) == 0 {
		return nil
	}
	out := make([]PipeID, len(dests))
	copy(out, dests)
	return out
}

// nextSequence returns the next 14 bit sequence count for mid
func (r *routeTable) nextSequence(mid msg.MsgID) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := (r.sequence[mid] + 1) & 0x3FFF
	r.sequence[mid] = seq
	return seq
}
