// Package notify defines the outbound client notification boundary. The core
// treats notification delivery as fire-and-forget: a failed send never fails
// the operation that triggered it.
package notify

import (
	"context"
	"time"
)

// Port is the outbound notification surface consumed by the engines and the
// controller. Implementations wrap the actual delivery channels.
type Port interface {
	SendWelcome(ctx context.Context, workflowID, clientID string) error
	SendStepReminder(ctx context.Context, workflowID, clientID, step string) error
	SendMilestoneCelebration(ctx context.Context, workflowID, clientID, milestone string) error
	SendDelay(ctx context.Context, workflowID, clientID, reason string, newEstimate time.Time) error
	SendBlockerAlert(ctx context.Context, workflowID, clientID, description string) error
	SendCompletionNotice(ctx context.Context, workflowID, clientID string) error
}
