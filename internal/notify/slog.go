package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianfs/onboard/internal/logging"
)

// LogNotifier is a Port that records every send to the structured log. It
// stands in for real delivery channels in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) send(ctx context.Context, workflowID, clientID, kind string, attrs ...slog.Attr) {
	ctx = logging.WithWorkflowID(logging.WithClientID(ctx, clientID), workflowID)
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("notification", kind))
	for _, a := range attrs {
		args = append(args, a)
	}
	logging.LogWith(ctx, n.logger).InfoContext(ctx, "notification sent", args...)
}

func (n *LogNotifier) SendWelcome(ctx context.Context, workflowID, clientID string) error {
	n.send(ctx, workflowID, clientID, "welcome")
	return nil
}

func (n *LogNotifier) SendStepReminder(ctx context.Context, workflowID, clientID, step string) error {
	n.send(ctx, workflowID, clientID, "step_reminder", slog.String("step", step))
	return nil
}

func (n *LogNotifier) SendMilestoneCelebration(ctx context.Context, workflowID, clientID, milestone string) error {
	n.send(ctx, workflowID, clientID, "milestone_celebration", slog.String("milestone", milestone))
	return nil
}

func (n *LogNotifier) SendDelay(ctx context.Context, workflowID, clientID, reason string, newEstimate time.Time) error {
	n.send(ctx, workflowID, clientID, "delay",
		slog.String("reason", reason),
		slog.Time("new_estimate", newEstimate))
	return nil
}

func (n *LogNotifier) SendBlockerAlert(ctx context.Context, workflowID, clientID, description string) error {
	n.send(ctx, workflowID, clientID, "blocker_alert", slog.String("description", description))
	return nil
}

func (n *LogNotifier) SendCompletionNotice(ctx context.Context, workflowID, clientID string) error {
	n.send(ctx, workflowID, clientID, "completion_notice")
	return nil
}

var _ Port = (*LogNotifier)(nil)
