package rosapp

import (
	"errors"
	"fmt"

	"github.com/najoast/rosapp/evs"
	"github.com/najoast/rosapp/msg"
)

// ErrCommandCollision reports two commands sharing a message id and code
var ErrCommandCollision = errors.New("rosapp: duplicate command code")

type commandHandler func(a *App, m *msg.Message) error

type commandKey struct {
	mid  msg.MsgID
	code msg.FcnCode
}

// commandEntry describes one fixed ground command
type commandEntry struct {
	mid     msg.MsgID
	code    msg.FcnCode
	name    string
	length  int
	handler commandHandler
}

type commandTable map[commandKey]commandEntry

// groundCommands is the command set, fixed at build time
func groundCommands() []commandEntry {
	return []commandEntry{
		{mid: CmdMID, code: NoopCC, name: "NOOP", length: NoArgsCmdSize, handler: (*App).Noop},
		{mid: CmdMID, code: ResetCountersCC, name: "RESET_COUNTERS", length: NoArgsCmdSize, handler: (*App).ResetCounters},
		{mid: CmdMID, code: ProcessCC, name: "PROCESS", length: NoArgsCmdSize, handler: (*App).Process},
		{mid: CmdMID, code: HelloCC, name: "HELLO", length: NoArgsCmdSize, handler: (*App).Hello},
	}
}

func newCommandTable(entries []commandEntry) (commandTable, error) {
	cmds := make(commandTable, len(entries))
	for _, entry := range entries {
		key := commandKey{mid: entry.mid, code: entry.code}
		if prev, exists := cmds[key]; exists {
			return nil, fmt.Errorf("%w: %s and %s use MID %s CC %d",
				ErrCommandCollision, prev.name, entry.name, entry.mid, entry.code)
		}
		cmds[key] = entry
	}
	return cmds, nil
}

// ProcessCommandPacket routes a message received on the command pipe
func (a *App) ProcessCommandPacket(m *msg.Message) {
	if m == nil {
		return
	}

	switch mid := m.ID; {
	case mid == CmdMID:
		a.ProcessGroundCommand(m)
	case mid == SendHKMID:
		a.ReportHousekeeping()
	case IsRosout(mid):
		a.ReportRosoutMsg(m)
	default:
		a.sendEvent(InvalidMsgIDErrEID, evs.EventError,
			"ros: invalid command packet,MID = 0x%x", uint16(mid))
	}
}

// ProcessGroundCommand runs the handler registered for the command code once
// the packet length checks out. An unknown code is reported but not counted.
func (a *App) ProcessGroundCommand(m *msg.Message) {
	entry, ok := a.commands[commandKey{mid: m.ID, code: m.FcnCode}]
	if !ok {
		a.sendEvent(CommandErrEID, evs.EventError,
			"Invalid ground command code: CC = %d", m.FcnCode)
		return
	}

	if !a.VerifyCmdLength(m, entry.length) {
		return
	}

	if err := entry.handler(a, m); err != nil {
		a.log.Warn().Err(err).Str("command", entry.name).Msg("command failed")
	}
}

// VerifyCmdLength counts and reports a packet whose size differs from expected
func (a *App) VerifyCmdLength(m *msg.Message, expected int) bool {
	actual := m.Size()
	if actual == expected {
		return true
	}

	a.sendEvent(LenErrEID, evs.EventError,
		"Invalid Msg length: ID = 0x%X,  CC = %d, Len = %d, Expected = %d",
		uint16(m.ID), m.FcnCode, actual, expected)
	a.counters.IncrementError()
	return false
}
