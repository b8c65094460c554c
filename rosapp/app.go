// Package rosapp implements the ros application: a command-driven component
// that counts ground commands, reports housekeeping telemetry and serves a
// validated configuration table.
package rosapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/najoast/rosapp/bootstrap"
	"github.com/najoast/rosapp/bus"
	"github.com/najoast/rosapp/evs"
	"github.com/najoast/rosapp/msg"
	"github.com/najoast/rosapp/table"
	"github.com/rs/zerolog"
)

// PerfID marks the application's main loop in the performance log
const PerfID uint32 = 91

// Defaults for Options
const (
	DefaultAppName   = "ROS_APP"
	DefaultPipeName  = "ROS_APP_CMD_PIPE"
	DefaultPipeDepth = 32
)

// Executive is the host executive seen by the application
type Executive interface {
	RegisterApp(name string) (bootstrap.AppID, error)
	RunLoop(id bootstrap.AppID, status *bootstrap.RunStatus) bool
	RequestStop(id bootstrap.AppID) error
	ExitApp(id bootstrap.AppID, status bootstrap.RunStatus) error
	WriteToSysLog(format string, args ...any)
	MET() time.Duration
	PerfLogEntry(marker uint32)
	PerfLogExit(marker uint32)
}

// EventRegistry registers the application's event filters
type EventRegistry interface {
	Register(app string, filters []evs.BinFilter) (*evs.AppEvents, error)
}

// Tables is the table service seen by the application
type Tables interface {
	Register(owner string, schema *table.Schema, validate table.ValidateFunc) (table.Handle, error)
	Load(h table.Handle, src table.Source) error
	Manage(h table.Handle) error
	Acquire(h table.Handle) (*table.Guard, error)
	Info(h table.Handle) (table.Info, error)
}

// ErrAlreadyStarted is returned when Main runs a second time on one App
var ErrAlreadyStarted = errors.New("rosapp: main already started")

// InitError reports the initialization step that failed
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("rosapp: init %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Options contains the application's collaborators and settings
type Options struct {
	Executive Executive
	Bus       bus.Bus
	Events    EventRegistry
	Tables    Tables

	// Name registered with the executive and the event service
	Name string

	PipeName  string
	PipeDepth int

	// TableSource is loaded at startup; nil skips the initial load
	TableSource table.Source

	// RosoutDump logs every received rosout record
	RosoutDump bool

	Logger zerolog.Logger
}

// App is one running instance of the application
type App struct {
	name       string
	pipeName   string
	pipeDepth  int
	tableSrc   table.Source
	rosoutDump bool

	exec   Executive
	sb     bus.Bus
	evsReg EventRegistry
	tables Tables
	log    zerolog.Logger

	appID    bootstrap.AppID
	counters Counters
	filters  []evs.BinFilter
	events   evs.Sender
	hk       *msg.Message
	pipe     bus.PipeID
	commands commandTable

	tableHandle  table.Handle
	tableHandles []table.Handle

	mu      sync.RWMutex
	started bool
	status  bootstrap.RunStatus
	ready   chan struct{}
}

// New creates an application. Missing names fall back to the defaults.
func New(opts Options) (*App, error) {
	if opts.Executive == nil || opts.Bus == nil || opts.Events == nil || opts.Tables == nil {
		return nil, errors.New("rosapp: executive, bus, events and tables are required")
	}
	if opts.Name == "" {
		opts.Name = DefaultAppName
	}
	if opts.PipeName == "" {
		opts.PipeName = DefaultPipeName
	}
	if opts.PipeDepth <= 0 {
		opts.PipeDepth = DefaultPipeDepth
	}

	return &App{
		name:       opts.Name,
		pipeName:   opts.PipeName,
		pipeDepth:  opts.PipeDepth,
		tableSrc:   opts.TableSource,
		rosoutDump: opts.RosoutDump,
		exec:       opts.Executive,
		sb:         opts.Bus,
		evsReg:     opts.Events,
		tables:     opts.Tables,
		log:        opts.Logger.With().Str("component", "rosapp").Str("app", opts.Name).Logger(),
		ready:      make(chan struct{}),
	}, nil
}

// Name returns the registered application name
func (a *App) Name() string {
	return a.name
}

// ID returns the executive id, valid once Main has started
func (a *App) ID() bootstrap.AppID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.appID
}

// Status returns the current run status
func (a *App) Status() bootstrap.RunStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Counters returns the current command and error counters
func (a *App) Counters() CounterSnapshot {
	return a.counters.Snapshot()
}

// TableHandle returns the handle of the component table
func (a *App) TableHandle() table.Handle {
	return a.tableHandle
}

// Ready is closed once initialization succeeded
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

func (a *App) setStatus(status bootstrap.RunStatus) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
}

// Main registers with the executive, initializes and then processes
// messages until the executive stops the loop. It returns the exit status
// and the error that ended the run, if any.
func (a *App) Main(ctx context.Context) (bootstrap.RunStatus, error) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return bootstrap.RunStatusError, ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	id, err := a.exec.RegisterApp(a.name)
	if err != nil {
		a.setStatus(bootstrap.RunStatusError)
		return bootstrap.RunStatusError, &InitError{Step: "register app", Err: err}
	}
	a.mu.Lock()
	a.appID = id
	a.mu.Unlock()

	a.exec.PerfLogEntry(PerfID)

	status := bootstrap.RunStatusRun
	runErr := a.Init()
	if runErr != nil {
		status = bootstrap.RunStatusError
	}
	a.setStatus(status)
	if runErr == nil {
		close(a.ready)
	}

	for a.exec.RunLoop(a.appID, &status) {
		a.exec.PerfLogExit(PerfID)

		m, err := a.sb.ReceiveBuffer(ctx, a.pipe, bus.PendForever)

		a.exec.PerfLogEntry(PerfID)

		if err != nil {
			if ctx.Err() != nil {
				a.log.Info().Msg("receive interrupted, exiting")
				status = bootstrap.RunStatusExit
			} else {
				a.sendEvent(PipeErrEID, evs.EventError, "ros App: SB Pipe Read Error, App Will Exit")
				status = bootstrap.RunStatusError
				runErr = fmt.Errorf("rosapp: receive: %w", err)
			}
			continue
		}

		a.ProcessCommandPacket(m)
	}

	a.exec.PerfLogExit(PerfID)
	a.setStatus(status)

	if err := a.exec.ExitApp(a.appID, status); err != nil {
		a.log.Warn().Err(err).Msg("exit notification failed")
	}
	return status, runErr
}

// Init performs one-time setup. Any error is fatal to the application
// except a failed initial table load.
func (a *App) Init() error {
	a.counters.Reset()

	a.filters = DefaultEventFilters()
	events, err := a.evsReg.Register(a.name, a.filters)
	if err != nil {
		a.exec.WriteToSysLog("ros App: Error Registering Events, RC = %v", err)
		return &InitError{Step: "register events", Err: err}
	}
	a.events = events

	a.hk = msg.NewTelemetry(HKTlmMID, HKPayloadSize)

	a.pipe, err = a.sb.CreatePipe(a.pipeName, a.pipeDepth)
	if err != nil {
		a.exec.WriteToSysLog("ros App: Error creating pipe, RC = %v", err)
		return &InitError{Step: "create pipe", Err: err}
	}

	if err := a.sb.Subscribe(SendHKMID, a.pipe); err != nil {
		a.exec.WriteToSysLog("ros App: Error Subscribing to HK request, RC = %v", err)
		return &InitError{Step: "subscribe housekeeping", Err: err}
	}
	if err := a.sb.Subscribe(CmdMID, a.pipe); err != nil {
		a.exec.WriteToSysLog("ros App: Error Subscribing to Command, RC = %v", err)
		return &InitError{Step: "subscribe command", Err: err}
	}
	for _, mid := range RosoutMIDs() {
		if err := a.sb.Subscribe(mid, a.pipe); err != nil {
			a.exec.WriteToSysLog("ros App: Error Subscribing to rosout %s, RC = %v", mid, err)
			return &InitError{Step: "subscribe rosout", Err: err}
		}
	}

	a.commands, err = newCommandTable(groundCommands())
	if err != nil {
		return &InitError{Step: "build command table", Err: err}
	}

	a.tableHandle, err = a.tables.Register(a.name, TableSchema(), ValidateTable)
	if err != nil {
		a.exec.WriteToSysLog("ros App: Error Registering Table, RC = %v", err)
		return &InitError{Step: "register table", Err: err}
	}
	a.tableHandles = []table.Handle{a.tableHandle}

	if a.tableSrc != nil {
		if err := a.tables.Load(a.tableHandle, a.tableSrc); err != nil {
			a.exec.WriteToSysLog("ros App: Error Loading Table %s, RC = %v", a.tableSrc, err)
		}
	}

	a.sendEvent(StartupInfEID, evs.EventInformation, "ros App Initialized.%s", VersionString)
	return nil
}

func (a *App) sendEvent(id evs.EventID, typ evs.EventType, format string, args ...any) {
	if a.events == nil {
		return
	}
	if err := a.events.SendEvent(id, typ, format, args...); err != nil {
		a.log.Warn().Err(err).Uint16("event_id", uint16(id)).Msg("send event failed")
	}
}
