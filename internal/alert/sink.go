// Package alert implements the Alert Sink: a narrow
// fan-out point for the structured notifications the Orchestrator emits as
// it moves through the day, via a logrus-based
// dashboard logger in cmd/orb-agent/main.go — same JSON/text formatter choice,
// same WithFields idiom — generalized from a dashboard event feed into a
// typed Sink interface so tests can swap in an in-memory recorder.
package alert

import (
	"context"
	"time"
)

// Kind names the ten alert categories the Orchestrator can emit.
type Kind string

const (
	KindMorning           Kind = "MORNING"
	KindHoliday           Kind = "HOLIDAY"
	KindORBCapture        Kind = "ORB_CAPTURE"
	KindSignalCollection  Kind = "SIGNAL_COLLECTION"
	KindBatchExecution    Kind = "BATCH_EXECUTION"
	KindIndividualExit    Kind = "INDIVIDUAL_EXIT"
	KindAggregatedExit    Kind = "AGGREGATED_EXIT"
	KindHealthWarning     Kind = "HEALTH_WARNING"
	KindHealthEmergency   Kind = "HEALTH_EMERGENCY"
	KindEODReport         Kind = "EOD_REPORT"
)

// Alert is a single structured notification.
type Alert struct {
	Kind    Kind
	Time    time.Time
	Payload map[string]any
}

// Sink fans an Alert out to its transport (log line, webhook, etc).
type Sink interface {
	Emit(ctx context.Context, a Alert) error
}

// DedupKinds are the alert kinds that fire at most once per
// (kind, date), tracked via the DailyMarker's alerts_sent_flags.
var DedupKinds = map[Kind]bool{
	KindMorning:          true,
	KindORBCapture:       true,
	KindSignalCollection: true,
	KindBatchExecution:   true,
	KindEODReport:        true,
}

// New builds an Alert with payload as its key/value fields.
func New(kind Kind, at time.Time, payload map[string]any) Alert {
	if payload == nil {
		payload = map[string]any{}
	}
	return Alert{Kind: kind, Time: at, Payload: payload}
}
