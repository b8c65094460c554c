package rosapp

import (
	"bytes"
	"fmt"

	"github.com/najoast/rosapp/msg"
)

// ReportHousekeeping sends the counters as housekeeping telemetry, then
// lets every table finish pending loads.
func (a *App) ReportHousekeeping() error {
	snap := a.counters.Snapshot()
	a.hk.Payload[0] = snap.Error
	a.hk.Payload[1] = snap.Command

	a.hk.SetTime(a.exec.MET())
	err := a.sb.TransmitMsg(a.hk, true)
	if err != nil {
		a.log.Warn().Err(err).Msg("housekeeping transmit failed")
		err = fmt.Errorf("transmit housekeeping: %w", err)
	}

	for _, h := range a.tableHandles {
		if mErr := a.tables.Manage(h); mErr != nil {
			a.log.Warn().Err(mErr).Str("table", h.String()).Msg("table manage failed")
		}
	}
	return err
}

// ReportRosoutMsg accepts a rosout log record. Records are dropped unless
// dumping is enabled, in which case they are logged at debug level.
func (a *App) ReportRosoutMsg(m *msg.Message) error {
	if !a.rosoutDump {
		return nil
	}

	text := m.Payload
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	a.log.Debug().
		Str("mid", m.ID.String()).
		Str("severity", rosoutLevels[m.ID]).
		Str("time", m.Time.String()).
		Bytes("record", text).
		Msg("rosout")
	return nil
}
