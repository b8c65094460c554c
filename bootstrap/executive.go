package bootstrap

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunStatus is an application's requested or final run state
type RunStatus uint32

const (
	RunStatusUndefined RunStatus = iota
	RunStatusRun
	RunStatusExit
	RunStatusError
)

// String returns the string representation of RunStatus
func (s RunStatus) String() string {
	switch s {
	case RunStatusRun:
		return "RUN"
	case RunStatusExit:
		return "EXIT"
	case RunStatusError:
		return "ERROR"
	default:
		return "UNDEFINED"
	}
}

// AppID identifies an application registered with the executive
type AppID uint32

// Executive errors
var (
	ErrAppExists     = errors.New("executive: application already running")
	ErrAppNotFound   = errors.New("executive: application not registered")
	ErrEmptyAppName  = errors.New("executive: application name is empty")
	ErrAlreadyExited = errors.New("executive: application already exited")
)

// Clock reports mission elapsed time
type Clock interface {
	MET() time.Duration
}

// SystemClock measures elapsed time since its creation
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// MET returns the time since the clock started
func (c *SystemClock) MET() time.Duration {
	return time.Since(c.start)
}

// ManualClock only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	met time.Duration
}

// MET returns the current manual time
func (c *ManualClock) MET() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.met
}

// Set moves the clock to met
func (c *ManualClock) Set(met time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.met = met
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.met += d
}

// AppInfo describes a registered application
type AppInfo struct {
	ID            AppID
	Name          string
	StopRequested bool
	Exited        bool
	ExitStatus    RunStatus
	RegisteredAt  time.Duration
	ExitedAt      time.Duration
}

// PerfStats summarizes one performance marker
type PerfStats struct {
	Entries uint64
	Exits   uint64
	Total   time.Duration
}

type perfRecord struct {
	PerfStats
	enteredAt time.Time
	inside    bool
}

// ExecutiveOptions contains configuration options for the executive
type ExecutiveOptions struct {
	// Clock provides mission elapsed time; defaults to a SystemClock
	Clock Clock

	// Logger receives syslog lines and application transitions
	Logger zerolog.Logger

	// SysLogCapacity bounds the retained syslog lines
	SysLogCapacity int
}

// Executive tracks applications and provides host services to them
type Executive struct {
	clock     Clock
	log       zerolog.Logger
	sysLogCap int

	mu     sync.Mutex
	apps   map[AppID]*AppInfo
	names  map[string]AppID
	nextID AppID
	sysLog []string
	perf   map[uint32]*perfRecord

	exitListeners []func(AppInfo)
}

// NewExecutive creates a new executive
func NewExecutive(opts ExecutiveOptions) *Executive {
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.SysLogCapacity <= 0 {
		opts.SysLogCapacity = 512
	}

	return &Executive{
		clock:     opts.Clock,
		log:       opts.Logger.With().Str("component", "executive").Logger(),
		sysLogCap: opts.SysLogCapacity,
		apps:      make(map[AppID]*AppInfo),
		names:     make(map[string]AppID),
		perf:      make(map[uint32]*perfRecord),
	}
}

// RegisterApp records a running application. A name may be reused once
// the previous holder has exited.
func (e *Executive) RegisterApp(name string) (AppID, error) {
	if name == "" {
		return 0, ErrEmptyAppName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, exists := e.names[name]; exists && !e.apps[id].Exited {
		return 0, fmt.Errorf("%w: %s", ErrAppExists, name)
	}

	e.nextID++
	id := e.nextID
	e.apps[id] = &AppInfo{ID: id, Name: name, RegisteredAt: e.clock.MET()}
	e.names[name] = id

	e.log.Info().Str("app", name).Uint32("app_id", uint32(id)).Msg("application registered")
	return id, nil
}

// RunLoop reports whether the application should keep running. A pending
// stop request turns a RUN status into EXIT.
func (e *Executive) RunLoop(id AppID, status *RunStatus) bool {
	if status == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	app, ok := e.apps[id]
	if !ok || app.Exited {
		*status = RunStatusError
		return false
	}
	if app.StopRequested && *status == RunStatusRun {
		*status = RunStatusExit
	}
	return *status == RunStatusRun
}

// RequestStop asks the application to exit at its next RunLoop
func (e *Executive) RequestStop(id AppID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, ok := e.apps[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAppNotFound, id)
	}
	app.StopRequested = true
	return nil
}

// ExitApp records the application's final status
func (e *Executive) ExitApp(id AppID, status RunStatus) error {
	e.mu.Lock()
	app, ok := e.apps[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrAppNotFound, id)
	}
	if app.Exited {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExited, app.Name)
	}
	app.Exited = true
	app.ExitStatus = status
	app.ExitedAt = e.clock.MET()
	info := *app
	listeners := make([]func(AppInfo), len(e.exitListeners))
	copy(listeners, e.exitListeners)
	e.mu.Unlock()

	ev := e.log.Info()
	if status == RunStatusError {
		ev = e.log.Error()
	}
	ev.Str("app", info.Name).Str("status", status.String()).Msg("application exited")

	for _, listener := range listeners {
		listener(info)
	}
	return nil
}

// OnExit registers a callback run after every ExitApp
func (e *Executive) OnExit(listener func(AppInfo)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exitListeners = append(e.exitListeners, listener)
}

// App returns a copy of the application's record
func (e *Executive) App(id AppID) (AppInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, ok := e.apps[id]
	if !ok {
		return AppInfo{}, false
	}
	return *app, true
}

// AppByName returns the most recent application registered under name
func (e *Executive) AppByName(name string) (AppInfo, bool) {
	e.mu.Lock()
	id, ok := e.names[name]
	e.mu.Unlock()

	if !ok {
		return AppInfo{}, false
	}
	return e.App(id)
}

// MET returns mission elapsed time
func (e *Executive) MET() time.Duration {
	return e.clock.MET()
}

// WriteToSysLog appends a formatted line to the system log
func (e *Executive) WriteToSysLog(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	e.mu.Lock()
	if len(e.sysLog) == e.sysLogCap {
		copy(e.sysLog, e.sysLog[1:])
		e.sysLog = e.sysLog[:len(e.sysLog)-1]
	}
	e.sysLog = append(e.sysLog, line)
	e.mu.Unlock()

	e.log.Info().Str("component", "syslog").Dur("met", e.clock.MET()).Msg(line)
}

// SysLog returns the retained system log, oldest first
func (e *Executive) SysLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.sysLog))
	copy(out, e.sysLog)
	return out
}

// PerfLogEntry marks entry into the region identified by marker
func (e *Executive) PerfLogEntry(marker uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.perf[marker]
	if !ok {
		rec = &perfRecord{}
		e.perf[marker] = rec
	}
	rec.Entries++
	rec.enteredAt = time.Now()
	rec.inside = true
}

// PerfLogExit marks exit from the region identified by marker
func (e *Executive) PerfLogExit(marker uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.perf[marker]
	if !ok {
		rec = &perfRecord{}
		e.perf[marker] = rec
	}
	rec.Exits++
	if rec.inside {
		rec.Total += time.Since(rec.enteredAt)
		rec.inside = false
	}
}

// Perf returns the statistics collected for marker
func (e *Executive) Perf(marker uint32) PerfStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.perf[marker]; ok {
		return rec.PerfStats
	}
	return PerfStats{}
}
