package evs

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

// Options contains configuration options for the event service
type Options struct {
	// MaxFilters bounds the filters one application may register
	MaxFilters int

	// LogCapacity bounds the local event log; older entries are overwritten
	LogCapacity int

	// Sinks receive every unfiltered event
	Sinks []Sink

	// Now stamps events; defaults to time.Now
	Now func() time.Time
}

// DefaultOptions returns the event service defaults
func DefaultOptions() Options {
	return Options{
		MaxFilters:  8,
		LogCapacity: 20,
		Now:         time.Now,
	}
}

// Service routes application events through filters to sinks
type Service struct {
	opts Options

	mu   sync.Mutex
	apps map[string]*AppEvents

	// Ring buffer of recent events
	log     []Event
	logNext int
	logFull bool
}

// NewService creates a new event service
func NewService(opts Options) *Service {
	defaults := DefaultOptions()
	if opts.MaxFilters <= 0 {
		opts.MaxFilters = defaults.MaxFilters
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = defaults.LogCapacity
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}

	return &Service{
		opts: opts,
		apps: make(map[string]*AppEvents),
		log:  make([]Event, opts.LogCapacity),
	}
}

// Register installs the application's filter table. Registering again
// replaces the previous filters and resets their counters.
func (s *Service) Register(app string, filters []BinFilter) (*AppEvents, error) {
	if app == "" {
		return nil, ErrEmptyAppName
	}
	if len(filters) > s.opts.MaxFilters {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyFilters, len(filters), s.opts.MaxFilters)
	}

	table := make(map[EventID]*filterState, len(filters))
	for _, f := range filters {
		if _, exists := table[f.EventID]; exists {
			return nil, fmt.Errorf("%w: event %d", ErrDuplicateFilter, f.EventID)
		}
		table[f.EventID] = &filterState{mask: f.Mask}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.apps[app]; ok {
		existing.mu.Lock()
		existing.filters = table
		existing.registered = true
		existing.mu.Unlock()
		return existing, nil
	}

	a := &AppEvents{svc: s, app: app, filters: table, registered: true}
	s.apps[app] = a
	return a, nil
}

// Unregister removes the application; later sends fail with ErrNotRegistered
func (s *Service) Unregister(app string) error {
	s.mu.Lock()
	a, ok := s.apps[app]
	delete(s.apps, app)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, app)
	}

	a.mu.Lock()
	a.registered = false
	a.mu.Unlock()
	return nil
}

// Log returns the local event log, oldest first
func (s *Service) Log() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.logFull {
		out := make([]Event, s.logNext)
		copy(out, s.log[:s.logNext])
		return out
	}

	out := make([]Event, 0, len(s.log))
	out = append(out, s.log[s.logNext:]...)
	out = append(out, s.log[:s.logNext]...)
	return out
}

// ClearLog empties the local event log
func (s *Service) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logNext = 0
	s.logFull = false
}

func (s *Service) publish(ev Event) {
	s.mu.Lock()
	s.log[s.logNext] = ev
	s.logNext++
	if s.logNext == len(s.log) {
		s.logNext = 0
		s.logFull = true
	}
	s.mu.Unlock()

	for _, sink := range s.opts.Sinks {
		sink.Write(ev)
	}
}

type filterState struct {
	mask  uint16
	count uint16
}

// AppEvents is one application's registration with the event service
type AppEvents struct {
	svc *Service
	app string

	mu         sync.Mutex
	filters    map[EventID]*filterState
	registered bool
	sent       uint64
	filtered   uint64
}

// SendEvent formats and publishes an event unless its filter suppresses it
func (a *AppEvents) SendEvent(id EventID, typ EventType, format string, args ...any) error {
	a.mu.Lock()
	if !a.registered {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, a.app)
	}

	if f, ok := a.filters[id]; ok {
		pass := f.count&f.mask == 0
		if f.count < maxFilterCount {
			f.count++
		}
		if !pass {
			a.filtered++
			a.mu.Unlock()
			return nil
		}
	}
	a.sent++
	a.mu.Unlock()

	text := fmt.Sprintf(format, args...)
	if len(text) > MaxMessageLength {
		cut := MaxMessageLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	a.svc.publish(Event{
		App:     a.app,
		ID:      id,
		Type:    typ,
		Message: text,
		Time:    a.svc.opts.Now(),
	})
	return nil
}

// ResetFilter zeroes the counter of one filter
func (a *AppEvents) ResetFilter(id EventID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.filters[id]
	if !ok {
		return fmt.Errorf("%w: event %d", ErrUnknownFilter, id)
	}
	f.count = 0
	return nil
}

// ResetAllFilters zeroes every filter counter
func (a *AppEvents) ResetAllFilters() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, f := range a.filters {
		f.count = 0
	}
}

// Counters returns how many events were sent and how many were filtered
func (a *AppEvents) Counters() (sent, filtered uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent, a.filtered
}

// Name returns the registered application name
func (a *AppEvents) Name() string {
	return a.app
}

var _ Sender = (*AppEvents)(nil)
