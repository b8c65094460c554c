package rosapp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/najoast/rosapp/bootstrap"
	"github.com/najoast/rosapp/bus"
	"github.com/najoast/rosapp/evs"
	"github.com/najoast/rosapp/msg"
	"github.com/najoast/rosapp/table"
	"github.com/rs/zerolog"
)

var errBusFault = errors.New("bus fault")

// faultyBus fails selected calls of an otherwise working bus
type faultyBus struct {
	*bus.SoftwareBus

	failSubscribe msg.MsgID
	receiveErr    error

	mu       sync.Mutex
	receives int
}

func (f *faultyBus) Subscribe(mid msg.MsgID, id bus.PipeID) error {
	if mid == f.failSubscribe {
		return errBusFault
	}
	return f.SoftwareBus.Subscribe(mid, id)
}

func (f *faultyBus) ReceiveBuffer(ctx context.Context, id bus.PipeID, timeout time.Duration) (*msg.Message, error) {
	f.mu.Lock()
	f.receives++
	f.mu.Unlock()

	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	return f.SoftwareBus.ReceiveBuffer(ctx, id, timeout)
}

type harness struct {
	clock    *bootstrap.ManualClock
	exec     *bootstrap.Executive
	sb       *faultyBus
	evsSvc   *evs.Service
	recorder *evs.Recorder
	tables   *table.Manager
	app      *App
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()

	h := &harness{
		clock:    &bootstrap.ManualClock{},
		recorder: evs.NewRecorder(),
		tables:   table.NewManager(table.DefaultOptions()),
		sb:       &faultyBus{SoftwareBus: bus.New(bus.DefaultOptions())},
	}
	h.exec = bootstrap.NewExecutive(bootstrap.ExecutiveOptions{Clock: h.clock, Logger: zerolog.Nop()})
	h.evsSvc = evs.NewService(evs.Options{Sinks: []evs.Sink{h.recorder}})

	opts := Options{
		Executive: h.exec,
		Bus:       h.sb,
		Events:    h.evsSvc,
		Tables:    h.tables,
		Logger:    zerolog.Nop(),
	}
	if configure != nil {
		configure(&opts)
	}

	app, err := New(opts)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	h.app = app
	return h
}

// initHarness builds and initializes an app, dropping the startup event
func initHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	h := newHarness(t, configure)
	if err := h.app.Init(); err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}
	h.recorder.Reset()
	return h
}

func (h *harness) command(code msg.FcnCode, payload []byte) {
	h.app.ProcessCommandPacket(msg.NewCommand(CmdMID, code, payload))
}

func (h *harness) syslogContains(substr string) bool {
	for _, line := range h.exec.SysLog() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestInit(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.app.Init(); err != nil {
		t.Fatalf("Failed to init app: %v", err)
	}

	ev, ok := h.recorder.Last()
	if !ok || ev.ID != StartupInfEID || ev.Type != evs.EventInformation {
		t.Fatalf("Expected startup event, got %+v", ev)
	}
	want := "ros App Initialized. ros App DEVELOPMENT BUILD v1.2.0-rc1+dev48, Last Official Release: v1.1.0"
	if ev.Message != want {
		t.Errorf("Expected %q, got %q", want, ev.Message)
	}

	if _, ok := h.sb.PipeIDByName(DefaultPipeName); !ok {
		t.Error("Expected command pipe to exist")
	}
	if h.app.TableHandle() == table.InvalidHandle {
		t.Error("Expected table to be registered")
	}
	if len(h.app.filters) != 7 {
		t.Errorf("Expected 7 event filters, got %d", len(h.app.filters))
	}
	if h.app.hk.Size() != HKTlmSize || HKTlmSize != 16 {
		t.Errorf("Expected 16 byte housekeeping packet, got %d", h.app.hk.Size())
	}
}

func TestNoopThenHousekeeping(t *testing.T) {
	h := initHarness(t, nil)

	hkPipe, err := h.sb.CreatePipe("HK_SINK", 4)
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	if err := h.sb.Subscribe(HKTlmMID, hkPipe); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	h.command(NoopCC, nil)
	if ev, _ := h.recorder.Last(); ev.ID != CommandNopInfEID || ev.Message != "ros: NOOP command v1.2.0-rc1+dev48" {
		t.Errorf("Unexpected noop event %+v", ev)
	}

	h.clock.Set(3 * time.Second)
	h.app.ProcessCommandPacket(msg.NewCommand(SendHKMID, 0, nil))

	hk, err := h.sb.ReceiveBuffer(context.Background(), hkPipe, bus.Poll)
	if err != nil {
		t.Fatalf("Failed to receive housekeeping: %v", err)
	}
	if hk.ID != HKTlmMID || hk.Size() != HKTlmSize {
		t.Errorf("Unexpected housekeeping packet %s size %d", hk.ID, hk.Size())
	}
	if hk.Payload[0] != 0 || hk.Payload[1] != 1 {
		t.Errorf("Expected err=0 cmd=1, got err=%d cmd=%d", hk.Payload[0], hk.Payload[1])
	}
	if hk.Time.Duration() != 3*time.Second {
		t.Errorf("Expected timestamp 3s, got %v", hk.Time.Duration())
	}

	if _, err := h.sb.ReceiveBuffer(context.Background(), hkPipe, bus.Poll); !errors.Is(err, bus.ErrNoMessage) {
		t.Errorf("Expected exactly one housekeeping packet, got %v", err)
	}
}

func TestHousekeepingEveryRequest(t *testing.T) {
	h := initHarness(t, nil)

	hkPipe, _ := h.sb.CreatePipe("HK_SINK", 4)
	h.sb.Subscribe(HKTlmMID, hkPipe)

	// housekeeping requests are not length checked
	h.app.ProcessCommandPacket(msg.NewCommand(SendHKMID, 0, []byte{1, 2, 3}))
	h.command(NoopCC, []byte{1})
	h.app.ProcessCommandPacket(msg.NewCommand(SendHKMID, 0, nil))

	first, err := h.sb.ReceiveBuffer(context.Background(), hkPipe, bus.Poll)
	if err != nil {
		t.Fatalf("Failed to receive first packet: %v", err)
	}
	second, err := h.sb.ReceiveBuffer(context.Background(), hkPipe, bus.Poll)
	if err != nil {
		t.Fatalf("Failed to receive second packet: %v", err)
	}
	if first.Payload[0] != 0 || second.Payload[0] != 1 {
		t.Errorf("Expected error counters 0 then 1, got %d then %d", first.Payload[0], second.Payload[0])
	}
	if second.Sequence != first.Sequence+1 {
		t.Errorf("Expected sequence to advance, got %d then %d", first.Sequence, second.Sequence)
	}
}

func TestCounters(t *testing.T) {
	tests := []struct {
		name  string
		noops int
		reset bool
		want  uint8
	}{
		{"none", 0, false, 0},
		{"some", 5, false, 5},
		{"wrap", 256, false, 0},
		{"past wrap", 300, false, 44},
		{"reset", 17, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := initHarness(t, nil)
			for i := 0; i < tt.noops; i++ {
				h.command(NoopCC, nil)
			}
			if tt.reset {
				h.command(ResetCountersCC, nil)
			}
			if got := h.app.Counters().Command; got != tt.want {
				t.Errorf("Expected cmdCounter %d, got %d", tt.want, got)
			}
		})
	}
}

func TestResetCounters(t *testing.T) {
	h := initHarness(t, nil)

	h.command(NoopCC, nil)
	h.command(NoopCC, []byte{0})
	if c := h.app.Counters(); c.Command != 1 || c.Error != 1 {
		t.Fatalf("Expected cmd=1 err=1, got %+v", c)
	}

	h.command(ResetCountersCC, nil)
	if c := h.app.Counters(); c != (CounterSnapshot{}) {
		t.Errorf("Expected both counters zeroed, got %+v", c)
	}
	if ev, _ := h.recorder.Last(); ev.ID != CommandRstInfEID || ev.Message != "ros: RESET command" {
		t.Errorf("Unexpected reset event %+v", ev)
	}
}

func TestLengthMismatch(t *testing.T) {
	codes := []msg.FcnCode{NoopCC, ResetCountersCC, ProcessCC, HelloCC}

	for _, code := range codes {
		h := initHarness(t, func(o *Options) {
			o.TableSource = table.ValuesSource{FieldInt1: 1, FieldInt2: 2}
		})
		h.command(NoopCC, nil)
		h.recorder.Reset()
		syslogLines := len(h.exec.SysLog())

		h.command(code, []byte{0xAA})

		c := h.app.Counters()
		if c.Error != 1 {
			t.Errorf("CC %d: expected errCounter 1, got %d", code, c.Error)
		}
		if c.Command != 1 {
			t.Errorf("CC %d: expected handler skipped, cmdCounter %d", code, c.Command)
		}
		events := h.recorder.Events()
		if len(events) != 1 || events[0].ID != LenErrEID || events[0].Type != evs.EventError {
			t.Fatalf("CC %d: expected one length event, got %+v", code, events)
		}
		if len(h.exec.SysLog()) != syslogLines {
			t.Errorf("CC %d: handler wrote to the syslog", code)
		}
	}

	h := initHarness(t, nil)
	h.command(HelloCC, []byte{1, 2})
	ev, _ := h.recorder.Last()
	want := "Invalid Msg length: ID = 0x1896,  CC = 3, Len = 10, Expected = 8"
	if ev.Message != want {
		t.Errorf("Expected %q, got %q", want, ev.Message)
	}
}

func TestUnknownCommandCode(t *testing.T) {
	h := initHarness(t, nil)

	h.command(99, nil)

	if c := h.app.Counters(); c.Error != 0 || c.Command != 0 {
		t.Errorf("Expected counters unchanged, got %+v", c)
	}
	events := h.recorder.Events()
	if len(events) != 1 || events[0].ID != CommandErrEID {
		t.Fatalf("Expected one command error event, got %+v", events)
	}
	if events[0].Message != "Invalid ground command code: CC = 99" {
		t.Errorf("Unexpected message %q", events[0].Message)
	}
}

func TestUnknownMsgID(t *testing.T) {
	h := initHarness(t, nil)

	h.app.ProcessCommandPacket(msg.NewCommand(msg.CmdMIDBase+0x42, NoopCC, nil))
	h.app.ProcessCommandPacket(nil)

	if c := h.app.Counters(); c != (CounterSnapshot{}) {
		t.Errorf("Expected counters unchanged, got %+v", c)
	}
	events := h.recorder.Events()
	if len(events) != 1 || events[0].ID != InvalidMsgIDErrEID {
		t.Fatalf("Expected one invalid msgid event, got %+v", events)
	}
	if events[0].Message != "ros: invalid command packet,MID = 0x1842" {
		t.Errorf("Unexpected message %q", events[0].Message)
	}
}

func TestProcess(t *testing.T) {
	h := initHarness(t, nil)

	// nothing loaded yet
	h.command(ProcessCC, nil)
	if !h.syslogContains("ros App: Fail to get table address") {
		t.Errorf("Expected address failure in syslog, got %v", h.exec.SysLog())
	}
	if c := h.app.Counters(); c != (CounterSnapshot{}) {
		t.Errorf("Expected counters unchanged, got %+v", c)
	}
	if err := h.app.Process(nil); !errors.Is(err, table.ErrNeverLoaded) {
		t.Errorf("Expected ErrNeverLoaded, got %v", err)
	}

	if err := h.tables.Load(h.app.TableHandle(), table.ValuesSource{FieldInt1: 5, FieldInt2: 7}); err != nil {
		t.Fatalf("Failed to load table: %v", err)
	}
	h.command(ProcessCC, nil)

	if !h.syslogContains("ros App: Table Value 1: 5  Value 2: 7") {
		t.Errorf("Expected table values in syslog, got %v", h.exec.SysLog())
	}
	info, err := h.tables.Info(h.app.TableHandle())
	if err != nil {
		t.Fatalf("Failed to get table info: %v", err)
	}
	if info.Holders != 0 {
		t.Errorf("Expected table released, %d holders remain", info.Holders)
	}
	lines := h.exec.SysLog()
	if last := lines[len(lines)-1]; !strings.HasPrefix(last, "ros App: CRC: 0x") {
		t.Errorf("Expected CRC line, got %q", last)
	}
}

func TestTableValidation(t *testing.T) {
	h := initHarness(t, func(o *Options) {
		o.TableSource = table.ValuesSource{FieldInt1: 4, FieldInt2: 100}
	})
	handle := h.app.TableHandle()

	err := h.tables.Load(handle, table.ValuesSource{FieldInt1: TableElement1Max + 1, FieldInt2: 0})
	if !errors.Is(err, table.ErrValidationFailed) || !errors.Is(err, table.ErrOutOfRange) {
		t.Fatalf("Expected out of range rejection, got %v", err)
	}
	if code, ok := table.ValidationCode(err); !ok || code != TableOutOfRangeErrCode {
		t.Errorf("Expected code %d, got %d", TableOutOfRangeErrCode, code)
	}

	h.command(ProcessCC, nil)
	if !h.syslogContains("Table Value 1: 4  Value 2: 100") {
		t.Errorf("Expected previous image to stay active, got %v", h.exec.SysLog())
	}
}

func TestHousekeepingManagesTables(t *testing.T) {
	h := initHarness(t, func(o *Options) {
		o.TableSource = table.ValuesSource{FieldInt1: 1, FieldInt2: 1}
	})
	handle := h.app.TableHandle()

	if err := h.tables.RequestLoad(handle, table.ValuesSource{FieldInt1: 9, FieldInt2: 2}); err != nil {
		t.Fatalf("Failed to request load: %v", err)
	}
	h.command(ProcessCC, nil)
	if !h.syslogContains("Table Value 1: 1  Value 2: 1") {
		t.Fatalf("Expected previous image before housekeeping, got %v", h.exec.SysLog())
	}

	h.app.ProcessCommandPacket(msg.NewCommand(SendHKMID, 0, nil))
	h.command(ProcessCC, nil)
	if !h.syslogContains("Table Value 1: 9  Value 2: 2") {
		t.Errorf("Expected reloaded image after housekeeping, got %v", h.exec.SysLog())
	}
}

func TestHello(t *testing.T) {
	h := initHarness(t, nil)
	h.clock.Set(2500 * time.Millisecond)

	h.command(HelloCC, nil)

	if c := h.app.Counters(); c.Command != 1 {
		t.Errorf("Expected cmdCounter 1, got %d", c.Command)
	}
	ev, _ := h.recorder.Last()
	if ev.ID != HelloWorldInfEID || ev.Message != "ros: Hello World! MET = 2.500000" {
		t.Errorf("Unexpected hello event %+v", ev)
	}
}

func TestRosout(t *testing.T) {
	var buf bytes.Buffer
	h := initHarness(t, func(o *Options) {
		o.RosoutDump = true
		o.Logger = zerolog.New(&buf)
	})

	for _, mid := range RosoutMIDs() {
		m := msg.NewTelemetry(mid, 16)
		copy(m.Payload, "node started\x00")
		h.app.ProcessCommandPacket(m)
	}

	if c := h.app.Counters(); c != (CounterSnapshot{}) {
		t.Errorf("Expected counters unchanged, got %+v", c)
	}
	if n := len(h.recorder.Events()); n != 0 {
		t.Errorf("Expected no events, got %d", n)
	}
	out := buf.String()
	if strings.Count(out, `"record":"node started"`) != 5 || !strings.Contains(out, `"severity":"fatal"`) {
		t.Errorf("Unexpected rosout dump %s", out)
	}

	quiet := initHarness(t, nil)
	if err := quiet.app.ReportRosoutMsg(msg.NewTelemetry(RosoutInfoMID, 4)); err != nil {
		t.Errorf("Expected rosout to be accepted, got %v", err)
	}
}

func TestInitFailures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(h *harness)
		step    string
		wantErr error
		syslog  string
	}{
		{
			name: "events",
			prepare: func(h *harness) {
				h.app.evsReg = evs.NewService(evs.Options{MaxFilters: 2})
			},
			step:    "register events",
			wantErr: evs.ErrTooManyFilters,
			syslog:  "Error Registering Events",
		},
		{
			name: "pipe name taken",
			prepare: func(h *harness) {
				h.sb.CreatePipe(DefaultPipeName, 4)
			},
			step:    "create pipe",
			wantErr: bus.ErrPipeNameTaken,
			syslog:  "Error creating pipe",
		},
		{
			name:    "pipe depth",
			prepare: func(h *harness) { h.app.pipeDepth = 1000 },
			step:    "create pipe",
			wantErr: bus.ErrInvalidDepth,
			syslog:  "Error creating pipe",
		},
		{
			name:    "housekeeping subscription",
			prepare: func(h *harness) { h.sb.failSubscribe = SendHKMID },
			step:    "subscribe housekeeping",
			wantErr: errBusFault,
			syslog:  "Error Subscribing to HK request",
		},
		{
			name:    "command subscription",
			prepare: func(h *harness) { h.sb.failSubscribe = CmdMID },
			step:    "subscribe command",
			wantErr: errBusFault,
			syslog:  "Error Subscribing to Command",
		},
		{
			name:    "rosout subscription",
			prepare: func(h *harness) { h.sb.failSubscribe = RosoutWarnMID },
			step:    "subscribe rosout",
			wantErr: errBusFault,
			syslog:  "Error Subscribing to rosout 0x089A",
		},
		{
			name: "table",
			prepare: func(h *harness) {
				h.tables.Register(DefaultAppName, TableSchema(), nil)
			},
			step:    "register table",
			wantErr: table.ErrDuplicateTable,
			syslog:  "Error Registering Table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.prepare(h)

			err := h.app.Init()
			var initErr *InitError
			if !errors.As(err, &initErr) || initErr.Step != tt.step {
				t.Fatalf("Expected init error at %q, got %v", tt.step, err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if !h.syslogContains(tt.syslog) {
				t.Errorf("Expected syslog %q, got %v", tt.syslog, h.exec.SysLog())
			}
			if h.recorder.Count(StartupInfEID) != 0 {
				t.Error("Startup event sent despite init failure")
			}
		})
	}
}

func TestInitTableLoadFailure(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.TableSource = table.FileSource(t.TempDir() + "/missing.tbl")
	})

	if err := h.app.Init(); err != nil {
		t.Fatalf("Expected table load failure to be tolerated, got %v", err)
	}
	if !h.syslogContains("ros App: Error Loading Table") {
		t.Errorf("Expected load failure in syslog, got %v", h.exec.SysLog())
	}
	if h.recorder.Count(StartupInfEID) != 1 {
		t.Error("Expected startup event")
	}
}

func TestCommandCollision(t *testing.T) {
	if _, err := newCommandTable(groundCommands()); err != nil {
		t.Fatalf("Ground commands collide: %v", err)
	}

	entries := append(groundCommands(), commandEntry{
		mid: CmdMID, code: NoopCC, name: "DUP", length: NoArgsCmdSize, handler: (*App).Noop,
	})
	if _, err := newCommandTable(entries); !errors.Is(err, ErrCommandCollision) {
		t.Errorf("Expected ErrCommandCollision, got %v", err)
	}
}

func TestMainInitFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.sb.failSubscribe = CmdMID

	status, err := h.app.Main(context.Background())
	if status != bootstrap.RunStatusError {
		t.Errorf("Expected ERROR, got %s", status)
	}
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Errorf("Expected InitError, got %v", err)
	}
	if h.sb.receives != 0 {
		t.Errorf("Expected no receive after failed init, got %d", h.sb.receives)
	}

	info, ok := h.exec.App(h.app.ID())
	if !ok || !info.Exited || info.ExitStatus != bootstrap.RunStatusError {
		t.Errorf("Expected ERROR exit recorded, got %+v", info)
	}
}

func TestMainRunsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.sb.receiveErr = bus.ErrPipeDeleted

	if _, err := h.app.Main(context.Background()); !errors.Is(err, bus.ErrPipeDeleted) {
		t.Fatalf("Expected receive error, got %v", err)
	}
	id := h.app.ID()

	status, err := h.app.Main(context.Background())
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	if status != bootstrap.RunStatusError {
		t.Errorf("Expected ERROR, got %s", status)
	}
	if h.app.ID() != id || h.sb.receives != 1 {
		t.Errorf("Expected second run to leave the app untouched, id %d receives %d", h.app.ID(), h.sb.receives)
	}
}

func TestMainReceiveFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.sb.receiveErr = bus.ErrPipeDeleted

	status, err := h.app.Main(context.Background())
	if status != bootstrap.RunStatusError {
		t.Errorf("Expected ERROR, got %s", status)
	}
	if !errors.Is(err, bus.ErrPipeDeleted) {
		t.Errorf("Expected receive error, got %v", err)
	}
	if h.sb.receives != 1 {
		t.Errorf("Expected one receive attempt, got %d", h.sb.receives)
	}
	if h.recorder.Count(PipeErrEID) != 1 {
		t.Error("Expected pipe error event")
	}
	if h.app.Status() != bootstrap.RunStatusError {
		t.Errorf("Expected status ERROR, got %s", h.app.Status())
	}
}

func TestMainRunsUntilStopped(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		status bootstrap.RunStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := h.app.Main(ctx)
		done <- result{status, err}
	}()

	select {
	case <-h.app.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for init")
	}

	for i := 0; i < 3; i++ {
		if err := h.sb.TransmitMsg(msg.NewCommand(CmdMID, NoopCC, nil), true); err != nil {
			t.Fatalf("Failed to transmit: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.app.Counters().Command != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for commands, counters %+v", h.app.Counters())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h.app.Status() != bootstrap.RunStatusRun {
		t.Errorf("Expected RUN, got %s", h.app.Status())
	}

	if err := h.exec.RequestStop(h.app.ID()); err != nil {
		t.Fatalf("Failed to request stop: %v", err)
	}
	cancel()

	select {
	case res := <-done:
		if res.status != bootstrap.RunStatusExit || res.err != nil {
			t.Errorf("Expected EXIT without error, got %s (%v)", res.status, res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Main to return")
	}

	info, _ := h.exec.App(h.app.ID())
	if info.ExitStatus != bootstrap.RunStatusExit {
		t.Errorf("Expected EXIT recorded, got %s", info.ExitStatus)
	}
	if h.exec.Perf(PerfID).Entries == 0 {
		t.Error("Expected performance markers")
	}
}

func TestService(t *testing.T) {
	h := newHarness(t, nil)
	svc := NewService(h.app)
	ctx := context.Background()

	if health, _ := svc.Health(ctx); health.State != bootstrap.HealthStarting {
		t.Errorf("Expected starting before Start, got %s", health.State)
	}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	if err := svc.Start(ctx); err == nil {
		t.Error("Expected second Start to fail")
	}
	if health, _ := svc.Health(ctx); health.State != bootstrap.HealthHealthy {
		t.Errorf("Expected healthy, got %s", health.State)
	}

	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop service: %v", err)
	}
	status, err := svc.Wait()
	if status != bootstrap.RunStatusExit || err != nil {
		t.Errorf("Expected EXIT, got %s (%v)", status, err)
	}
	if health, _ := svc.Health(ctx); health.State != bootstrap.HealthStopped {
		t.Errorf("Expected stopped, got %s", health.State)
	}
}

func TestServiceStartFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.sb.failSubscribe = SendHKMID
	svc := NewService(h.app)

	err := svc.Start(context.Background())
	if !errors.Is(err, errBusFault) {
		t.Fatalf("Expected start to report init failure, got %v", err)
	}
	if health, _ := svc.Health(context.Background()); health.State != bootstrap.HealthCritical {
		t.Errorf("Expected critical, got %s", health.State)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("Expected error without collaborators")
	}

	h := newHarness(t, func(o *Options) { o.Name = "" })
	if h.app.Name() != DefaultAppName || h.app.pipeName != DefaultPipeName || h.app.pipeDepth != DefaultPipeDepth {
		t.Errorf("Expected defaults, got %s %s %d", h.app.Name(), h.app.pipeName, h.app.pipeDepth)
	}
}
