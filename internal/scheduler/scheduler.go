// Package scheduler runs the periodic reminder scan: workflows idle in a
// non-terminal state beyond a threshold get a step reminder sent to the
// client.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meridianfs/onboard/internal/notify"
	"github.com/meridianfs/onboard/internal/store"
)

// DefaultIdleThreshold is how long a workflow may sit untouched before a
// reminder goes out.
const DefaultIdleThreshold = 48 * time.Hour

// DefaultScanSpec is the cron spec of the reminder scan.
const DefaultScanSpec = "@every 15m"

// WorkflowLister is the slice of the store the scan needs.
type WorkflowLister interface {
	ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*store.WorkflowInstance, error)
}

// ReminderScheduler periodically scans for stalled workflows and nudges their
// clients. A workflow is reminded at most once per idle period: the reminder
// timestamp resets only when the workflow moves again.
type ReminderScheduler struct {
	store         WorkflowLister
	notifier      notify.Port
	logger        *slog.Logger
	idleThreshold time.Duration

	mu           sync.Mutex
	cron         *cron.Cron
	lastReminded map[string]time.Time
}

// NewReminderScheduler creates a reminder scheduler. A zero idleThreshold
// takes DefaultIdleThreshold.
func NewReminderScheduler(s WorkflowLister, notifier notify.Port, idleThreshold time.Duration, logger *slog.Logger) *ReminderScheduler {
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderScheduler{
		store:         s,
		notifier:      notifier,
		logger:        logger,
		idleThreshold: idleThreshold,
		lastReminded:  make(map[string]time.Time),
	}
}

// Start schedules the scan under the given cron spec (empty takes
// DefaultScanSpec) and launches the cron runner.
func (s *ReminderScheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultScanSpec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("reminder scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := s.Scan(context.Background()); err != nil {
			s.logger.Error("reminder scan failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("invalid reminder scan spec %q: %w", spec, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("reminder scheduler started",
		slog.String("spec", spec),
		slog.Duration("idle_threshold", s.idleThreshold))
	return nil
}

// Stop halts the cron runner and waits for an in-flight scan to finish.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("reminder scheduler stopped")
	}
}

// Scan sends a reminder for every workflow sitting in a non-terminal state
// longer than the idle threshold. Send failures are logged and skipped; the
// scan continues.
func (s *ReminderScheduler) Scan(ctx context.Context) error {
	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		return fmt.Errorf("list workflows for reminder scan: %w", err)
	}

	now := time.Now().UTC()
	reminded := 0
	for _, wf := range workflows {
		if wf.CurrentState.Terminal() {
			s.forget(wf.ID)
			continue
		}
		if now.Sub(wf.UpdatedAt) < s.idleThreshold {
			s.forget(wf.ID)
			continue
		}
		if !s.shouldRemind(wf.ID, wf.UpdatedAt) {
			continue
		}

		if err := s.notifier.SendStepReminder(ctx, wf.ID, wf.ClientID, string(wf.CurrentState)); err != nil {
			s.logger.Warn("step reminder send failed",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()))
			continue
		}
		s.markReminded(wf.ID, now)
		reminded++
	}

	if reminded > 0 {
		s.logger.Info("reminder scan complete", slog.Int("reminded", reminded))
	}
	return nil
}

// shouldRemind reports whether the workflow has not been reminded since it
// last moved.
func (s *ReminderScheduler) shouldRemind(workflowID string, updatedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastReminded[workflowID]
	return !ok || last.Before(updatedAt)
}

func (s *ReminderScheduler) markReminded(workflowID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReminded[workflowID] = at
}

func (s *ReminderScheduler) forget(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastReminded, workflowID)
}
