package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes events to the log. It is the default sink when no
// webhook is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.log.Info("notification",
		zap.String("type", ev.Type),
		zap.String("owner_id", ev.OwnerID),
		zap.String("job_id", ev.JobID),
		zap.String("summary", ev.Summary),
	)
	return nil
}

// LogAlerter logs critical failures at error level so they stand out from
// routine job failures.
type LogAlerter struct {
	log *zap.Logger
}

func NewLogAlerter(log *zap.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

var _ Alerter = (*LogAlerter)(nil)

func (a *LogAlerter) Alert(ctx context.Context, jobID string, err error) {
	a.log.Error("critical failure",
		zap.String("job_id", jobID),
		zap.Error(err),
	)
}
