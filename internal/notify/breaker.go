package notify

import (
	"context"
	"sync"
	"time"

	"github.com/meridianfs/onboard/pkg/schema"
)

// BreakerState is the state of one notification channel's circuit.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the per-channel circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects sends before probing.
	Cooldown time.Duration
	// HalfOpenMax bounds the probe sends allowed while half-open.
	HalfOpenMax int
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

type breaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	lastFailure      time.Time
	halfOpenAttempts int
	config           BreakerConfig
}

func (b *breaker) allow(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.lastFailure) >= b.config.Cooldown {
			b.state = BreakerHalfOpen
			b.halfOpenAttempts = 1
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"notification channel %q suppressed after %d consecutive failures", channel, b.failures)
	case BreakerHalfOpen:
		if b.halfOpenAttempts >= b.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"notification channel %q half-open, probe in flight", channel)
		}
		b.halfOpenAttempts++
		return nil
	}
	return nil
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenAttempts = 0
	b.state = BreakerClosed
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		b.state = BreakerOpen
	}
}

// GuardedPort wraps a Port with a per-channel circuit breaker. Sends stay
// fire-and-forget: while a channel's circuit is open its sends are suppressed
// and the breaker error is returned, but nothing is retried or queued.
type GuardedPort struct {
	inner  Port
	config BreakerConfig

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewGuardedPort wraps a notification port with circuit breakers.
func NewGuardedPort(inner Port, config BreakerConfig) *GuardedPort {
	return &GuardedPort{
		inner:    inner,
		config:   config,
		breakers: make(map[string]*breaker),
	}
}

// State returns the breaker state for a channel.
func (g *GuardedPort) State(channel string) BreakerState {
	b := g.breakerFor(channel)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.config.Cooldown {
		b.state = BreakerHalfOpen
		b.halfOpenAttempts = 0
	}
	return b.state
}

func (g *GuardedPort) breakerFor(channel string) *breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[channel]
	if !ok {
		b = &breaker{state: BreakerClosed, config: g.config}
		g.breakers[channel] = b
	}
	return b
}

func (g *GuardedPort) guard(channel string, send func() error) error {
	b := g.breakerFor(channel)
	if err := b.allow(channel); err != nil {
		return err
	}
	if err := send(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (g *GuardedPort) SendWelcome(ctx context.Context, workflowID, clientID string) error {
	return g.guard("welcome", func() error { return g.inner.SendWelcome(ctx, workflowID, clientID) })
}

func (g *GuardedPort) SendStepReminder(ctx context.Context, workflowID, clientID, step string) error {
	return g.guard("step_reminder", func() error { return g.inner.SendStepReminder(ctx, workflowID, clientID, step) })
}

func (g *GuardedPort) SendMilestoneCelebration(ctx context.Context, workflowID, clientID, milestone string) error {
	return g.guard("milestone_celebration", func() error {
		return g.inner.SendMilestoneCelebration(ctx, workflowID, clientID, milestone)
	})
}

func (g *GuardedPort) SendDelay(ctx context.Context, workflowID, clientID, reason string, newEstimate time.Time) error {
	return g.guard("delay", func() error { return g.inner.SendDelay(ctx, workflowID, clientID, reason, newEstimate) })
}

func (g *GuardedPort) SendBlockerAlert(ctx context.Context, workflowID, clientID, description string) error {
	return g.guard("blocker_alert", func() error { return g.inner.SendBlockerAlert(ctx, workflowID, clientID, description) })
}

func (g *GuardedPort) SendCompletionNotice(ctx context.Context, workflowID, clientID string) error {
	return g.guard("completion_notice", func() error { return g.inner.SendCompletionNotice(ctx, workflowID, clientID) })
}

var _ Port = (*GuardedPort)(nil)
