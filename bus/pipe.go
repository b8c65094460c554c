package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/rosapp/msg"
)

// pipe is a bounded mailbox owned by one receiver
type pipe struct {
	id    PipeID
	name  string
	depth int

	// Channel holding delivered messages
	queue chan *msg.Message

	// Closed when the pipe is deleted
	done      chan struct{}
	closeOnce sync.Once

	received  uint64
	dropped   uint64
	peakInUse int32
}

func newPipe(id PipeID, name string, depth int) *pipe {
	return &pipe{
		id:    id,
		name:  name,
		depth: depth,
		queue: make(chan *msg.Message, depth),
		done:  make(chan struct{}),
	}
}

// deliver enqueues without blocking; it reports false when the pipe is
// full or deleted.
func (p *pipe) deliver(m *msg.Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.queue <- m:
		inUse := int32(len(p.queue))
		for {
			peak := atomic.LoadInt32(&p.peakInUse)
			if inUse <= peak || atomic.CompareAndSwapInt32(&p.peakInUse, peak, inUse) {
				break
			}
		}
		return true
	default:
		atomic.AddUint64(&p.dropped, 1)
		return false
	}
}

func (p *pipe) receive(ctx context.Context, timeout time.Duration) (*msg.Message, error) {
	// Queued messages win over deletion and cancellation
	select {
	case m := <-p.queue:
		atomic.AddUint64(&p.received, 1)
		return m, nil
	default:
	}

	if timeout == Poll {
		select {
		case <-p.done:
			return nil, ErrPipeDeleted
		default:
			return nil, ErrNoMessage
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case m := <-p.queue:
		atomic.AddUint64(&p.received, 1)
		return m, nil
	case <-p.done:
		return nil, ErrPipeDeleted
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrTimeout
	}
}

func (p *pipe) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *pipe) stats() PipeStats {
	return PipeStats{
		ID:        p.id,
		Name:      p.name,
		Depth:     p.depth,
		InUse:     len(p.queue),
		PeakInUse: int(atomic.LoadInt32(&p.peakInUse)),
		Received:  atomic.LoadUint64(&p.received),
		Dropped:   atomic.LoadUint64(&p.dropped),
	}
}
