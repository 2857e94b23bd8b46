package alert

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes every alert as a structured logrus entry, one field per
// payload key plus the alert kind, matching a dashboard logger
// conventions. Severity is chosen per kind: emergency/aggregated-exit
// alerts log at Warn, everything else at Info.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink wraps logger. Pass nil to use logrus.StandardLogger().
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, a Alert) error {
	fields := logrus.Fields{"alert_kind": a.Kind, "alert_time": a.Time}
	for k, v := range a.Payload {
		fields[k] = v
	}
	entry := s.logger.WithFields(fields)
	switch a.Kind {
	case KindHealthEmergency, KindAggregatedExit:
		entry.Warn("alert")
	default:
		entry.Info("alert")
	}
	return nil
}

var _ Sink = (*LogSink)(nil)
