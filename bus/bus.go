package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/rosapp/msg"
	"github.com/rs/zerolog"
)

// SoftwareBus is the in-process Bus implementation
type SoftwareBus struct {
	opts Options
	log  zerolog.Logger

	mu     sync.RWMutex
	pipes  map[PipeID]*pipe
	names  map[string]PipeID
	nextID uint32

	routes *routeTable

	msgsSent      uint64
	noSubscribers uint64
	pipeOverflows uint64
}

// New creates a new SoftwareBus
func New(opts Options) *SoftwareBus {
	defaults := DefaultOptions()
	if opts.MaxPipes <= 0 {
		opts.MaxPipes = defaults.MaxPipes
	}
	if opts.MaxPipeDepth <= 0 {
		opts.MaxPipeDepth = defaults.MaxPipeDepth
	}

	return &SoftwareBus{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "bus").Logger(),
		pipes:  make(map[PipeID]*pipe),
		names:  make(map[string]PipeID),
		routes: newRouteTable(),
	}
}

// CreatePipe allocates a named receive pipe
func (b *SoftwareBus) CreatePipe(name string, depth int) (PipeID, error) {
	if name == "" {
		return InvalidPipeID, ErrEmptyPipeName
	}
	if depth <= 0 || depth > b.opts.MaxPipeDepth {
		return InvalidPipeID, fmt.Errorf("%w: %d (max %d)", ErrInvalidDepth, depth, b.opts.MaxPipeDepth)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.names[name]; exists {
		return InvalidPipeID, fmt.Errorf("%w: %s", ErrPipeNameTaken, name)
	}
	if len(b.pipes) >= b.opts.MaxPipes {
		return InvalidPipeID, fmt.Errorf("%w: %d", ErrMaxPipesMet, b.opts.MaxPipes)
	}

	b.nextID++
	id := PipeID(b.nextID)
	b.pipes[id] = newPipe(id, name, depth)
	b.names[name] = id

	b.log.Debug().Str("pipe", name).Uint32("id", uint32(id)).Int("depth", depth).Msg("pipe created")
	return id, nil
}

// DeletePipe removes the pipe and wakes any pending receiver
func (b *SoftwareBus) DeletePipe(id PipeID) error {
	b.mu.Lock()
	p, exists := b.pipes[id]
	if exists {
		delete(b.pipes, id)
		delete(b.names, p.name)
	}
	b.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrInvalidPipe, id)
	}

	b.routes.removePipe(id)
	p.close()

	b.log.Debug().Str("pipe", p.name).Msg("pipe deleted")
	return nil
}

// PipeIDByName looks up a pipe by the name given at creation
func (b *SoftwareBus) PipeIDByName(name string) (PipeID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.names[name]
	return id, ok
}

// Subscribe routes mid to the pipe. Subscribing twice is not an error.
func (b *SoftwareBus) Subscribe(mid msg.MsgID, id PipeID) error {
	if !mid.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidMsgID, mid)
	}
	if _, ok := b.lookup(id); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidPipe, id)
	}

	if !b.routes.add(mid, id) {
		b.log.Debug().Str("mid", mid.String()).Uint32("pipe", uint32(id)).Msg("duplicate subscription")
	}
	return nil
}

// Unsubscribe stops routing mid to the pipe
func (b *SoftwareBus) Unsubscribe(mid msg.MsgID, id PipeID) error {
	if _, ok := b.lookup(id); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidPipe, id)
	}
	if !b.routes.remove(mid, id) {
		return fmt.Errorf("%w: %s on %s", ErrNotSubscribed, mid, id)
	}
	return nil
}

// ReceiveBuffer returns the next message from the pipe
func (b *SoftwareBus) ReceiveBuffer(ctx context.Context, id PipeID, timeout time.Duration) (*msg.Message, error) {
	p, ok := b.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPipe, id)
	}
	return p.receive(ctx, timeout)
}

// TransmitMsg delivers a copy of m to every subscribed pipe. A full pipe
// loses only its own copy; the call still succeeds.
func (b *SoftwareBus) TransmitMsg(m *msg.Message, incrementSequence bool) error {
	if m == nil {
		return ErrNilMessage
	}
	if !m.ID.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidMsgID, m.ID)
	}
	if m.Size() > msg.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMsgTooLarge, m.Size())
	}

	if incrementSequence {
		m.Sequence = b.routes.nextSequence(m.ID)
	}

	dests := b.routes.destinations(m.ID)
	if len(dests) == 0 {
		atomic.AddUint64(&b.noSubscribers, 1)
		return nil
	}

	for _, id := range dests {
		p, ok := b.lookup(id)
		if !ok {
			continue
		}
		if !p.deliver(m.Clone()) {
			atomic.AddUint64(&b.pipeOverflows, 1)
			b.log.Warn().
				Str("mid", m.ID.String()).
				Str("pipe", p.name).
				Int("depth", p.depth).
				Msg("pipe overflow, message dropped")
		}
	}

	atomic.AddUint64(&b.msgsSent, 1)
	return nil
}

// Stats returns a snapshot of bus statistics
func (b *SoftwareBus) Stats() Stats {
	b.mu.RLock()
	pipes := make([]PipeStats, 0, len(b.pipes))
	for _, p := range b.pipes {
		pipes = append(pipes, p.stats())
	}
	b.mu.RUnlock()

	sort.Slice(pipes, func(i, j int) bool { return pipes[i].ID < pipes[j].ID })

	return Stats{
		MsgsSent:      atomic.LoadUint64(&b.msgsSent),
		NoSubscribers: atomic.LoadUint64(&b.noSubscribers),
		PipeOverflows: atomic.LoadUint64(&b.pipeOverflows),
		Pipes:         pipes,
	}
}

func (b *SoftwareBus) lookup(id PipeID) (*pipe, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.pipes[id]
	return p, ok
}

var _ Bus = (*SoftwareBus)(nil)
