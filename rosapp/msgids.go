package rosapp

import "github.com/najoast/rosapp/msg"

// Command message ids
const (
	CmdMID    = msg.CmdMIDBase + 0x96
	SendHKMID = msg.CmdMIDBase + 0x97
)

// Telemetry message ids
const (
	HKTlmMID       = msg.TlmMIDBase + 0x97
	RosoutDebugMID = msg.TlmMIDBase + 0x98
	RosoutInfoMID  = msg.TlmMIDBase + 0x99
	RosoutWarnMID  = msg.TlmMIDBase + 0x9A
	RosoutErrorMID = msg.TlmMIDBase + 0x9B
	RosoutFatalMID = msg.TlmMIDBase + 0x9C
)

// Ground command codes
const (
	NoopCC          msg.FcnCode = 0
	ResetCountersCC msg.FcnCode = 1
	ProcessCC       msg.FcnCode = 2
	HelloCC         msg.FcnCode = 3
)

// NoArgsCmdSize is the size of a command that carries only its header
const NoArgsCmdSize = msg.CommandHeaderSize

// HKPayloadSize is the housekeeping payload: error counter, command
// counter and two spare bytes
const HKPayloadSize = 4

// HKTlmSize is the full housekeeping packet size
const HKTlmSize = msg.TelemetryHeaderSize + HKPayloadSize

// rosoutLevels maps each rosout stream to its severity
var rosoutLevels = map[msg.MsgID]string{
	RosoutDebugMID: "debug",
	RosoutInfoMID:  "info",
	RosoutWarnMID:  "warn",
	RosoutErrorMID: "error",
	RosoutFatalMID: "fatal",
}

// RosoutMIDs returns the rosout streams in severity order
func RosoutMIDs() []msg.MsgID {
	return []msg.MsgID{RosoutDebugMID, RosoutInfoMID, RosoutWarnMID, RosoutErrorMID, RosoutFatalMID}
}

// IsRosout reports whether mid carries rosout log records
func IsRosout(mid msg.MsgID) bool {
	_, ok := rosoutLevels[mid]
	return ok
}
