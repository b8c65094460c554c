package rosapp

import (
	"fmt"

	"github.com/najoast/rosapp/evs"
	"github.com/najoast/rosapp/msg"
	"github.com/najoast/rosapp/table"
)

// Noop acknowledges the command and reports the version
func (a *App) Noop(m *msg.Message) error {
	a.counters.IncrementCommand()
	a.sendEvent(CommandNopInfEID, evs.EventInformation, "ros: NOOP command %s", Version)
	return nil
}

// ResetCounters zeroes the command and error counters
func (a *App) ResetCounters(m *msg.Message) error {
	a.counters.Reset()
	a.sendEvent(CommandRstInfEID, evs.EventInformation, "ros: RESET command")
	return nil
}

// Process reads the active table image and logs its values and CRC
func (a *App) Process(m *msg.Message) error {
	guard, err := a.tables.Acquire(a.tableHandle)
	if err != nil {
		a.exec.WriteToSysLog("ros App: Fail to get table address: %v", err)
		return fmt.Errorf("process: %w", err)
	}
	defer guard.Release()

	img := guard.Image()
	int1, _ := img.Value(FieldInt1)
	int2, _ := img.Value(FieldInt2)
	a.exec.WriteToSysLog("ros App: Table Value 1: %d  Value 2: %d", int1, int2)

	a.GetCrc(a.tableHandle)
	return nil
}

// GetCrc logs the CRC of the active image
func (a *App) GetCrc(h table.Handle) {
	info, err := a.tables.Info(h)
	if err != nil {
		a.exec.WriteToSysLog("ros App: Error Getting Table Info: %v", err)
		return
	}
	a.exec.WriteToSysLog("ros App: CRC: 0x%08X", info.CRC)
}

// Hello greets with the current mission elapsed time
func (a *App) Hello(m *msg.Message) error {
	a.counters.IncrementCommand()
	met := msg.TimeFromDuration(a.exec.MET())
	a.sendEvent(HelloWorldInfEID, evs.EventInformation, "ros: Hello World! MET = %s", met)
	return nil
}
