// Package bus implements the publish/subscribe software bus that carries
// commands and telemetry between components.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/najoast/rosapp/msg"
	"github.com/rs/zerolog"
)

// PipeID is a typed handle to a receive pipe
type PipeID uint32

// InvalidPipeID is never allocated
const InvalidPipeID PipeID = 0

// String returns a string representation of the pipe id
func (id PipeID) String() string {
	return fmt.Sprintf("pipe:%d", uint32(id))
}

// Receive timeouts
const (
	// PendForever blocks until a message arrives or the pipe fails
	PendForever time.Duration = -1

	// Poll returns immediately when the pipe is empty
	Poll time.Duration = 0
)

// Bus errors
var (
	ErrInvalidPipe   = errors.New("bus: invalid pipe id")
	ErrPipeNameTaken = errors.New("bus: pipe name already in use")
	ErrMaxPipesMet   = errors.New("bus: maximum number of pipes reached")
	ErrInvalidDepth  = errors.New("bus: invalid pipe depth")
	ErrInvalidMsgID  = errors.New("bus: invalid message id")
	ErrNotSubscribed = errors.New("bus: pipe is not subscribed to message id")
	ErrPipeDeleted   = errors.New("bus: pipe deleted")
	ErrNoMessage     = errors.New("bus: no message")
	ErrTimeout       = errors.New("bus: receive timed out")
	ErrNilMessage    = errors.New("bus: message is nil")
	ErrMsgTooLarge   = errors.New("bus: message too large")
	ErrEmptyPipeName = errors.New("bus: pipe name is empty")
)

// Bus is the software bus seen by a component
type Bus interface {
	// CreatePipe allocates a named receive pipe holding up to depth messages
	CreatePipe(name string, depth int) (PipeID, error)

	// DeletePipe removes the pipe and all of its subscriptions. Pending
	// receivers are woken with ErrPipeDeleted.
	DeletePipe(id PipeID) error

	// Subscribe routes every message carrying mid to the pipe
	Subscribe(mid msg.MsgID, id PipeID) error

	// Unsubscribe stops routing mid to the pipe
	Unsubscribe(mid msg.MsgID, id PipeID) error

	// ReceiveBuffer returns the next message from the pipe. A negative
	// timeout blocks until a message arrives, the pipe is deleted or ctx ends.
	ReceiveBuffer(ctx context.Context, id PipeID, timeout time.Duration) (*msg.Message, error)

	// TransmitMsg delivers a copy of the message to every subscribed pipe
	TransmitMsg(m *msg.Message, incrementSequence bool) error
}

// Options contains configuration options for a SoftwareBus
type Options struct {
	// MaxPipes bounds the number of pipes that may exist at once
	MaxPipes int

	// MaxPipeDepth bounds the depth requested by CreatePipe
	MaxPipeDepth int

	// Logger receives delivery warnings
	Logger zerolog.Logger
}

// DefaultOptions returns the bus limits used by the host
func DefaultOptions() Options {
	return Options{
		MaxPipes:     64,
		MaxPipeDepth: 256,
		Logger:       zerolog.Nop(),
	}
}

// PipeStats contains runtime statistics for a pipe
type PipeStats struct {
	ID        PipeID
	Name      string
	Depth     int
	InUse     int
	PeakInUse int
	Received  uint64
	Dropped   uint64
}

// Stats contains runtime statistics for the bus
type Stats struct {
	MsgsSent      uint64
	NoSubscribers uint64
	PipeOverflows uint64
	Pipes         []PipeStats
}
