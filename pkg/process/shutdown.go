package process

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultGracePeriod = 3 * time.Second
	DefaultKillTimeout = 5 * time.Second
)

// ErrProcessUnkillable is returned when a process survives the forced kill.
var ErrProcessUnkillable = errors.New("process did not exit after forced kill")

// Target is the part of a process the coordinator needs.
type Target interface {
	Signal(sig os.Signal) error
	Done() <-chan struct{}
}

// ShutdownResult describes how a shutdown completed.
type ShutdownResult struct {
	Escalated bool          `json:"escalated"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Coordinator stops a process with an interrupt, then a kill once the grace
// period elapses. It only reports completion after the exit was observed.
type Coordinator struct {
	Interrupt   os.Signal
	GracePeriod time.Duration
	KillTimeout time.Duration
}

// NewCoordinator returns a coordinator, substituting defaults for zero durations.
func NewCoordinator(gracePeriod, killTimeout time.Duration) *Coordinator {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}
	return &Coordinator{
		Interrupt:   os.Interrupt,
		GracePeriod: gracePeriod,
		KillTimeout: killTimeout,
	}
}

// Shutdown runs the interrupt / grace / kill protocol against t. Cancelling ctx
// skips the remainder of the grace period; it never skips waiting for the exit.
func (c *Coordinator) Shutdown(ctx context.Context, t Target) (ShutdownResult, error) {
	start := time.Now()
	interrupt := c.Interrupt
	if interrupt == nil {
		interrupt = os.Interrupt
	}

	if err := t.Signal(interrupt); err != nil {
		log.Warn().Err(err).Msg("interrupt signal failed")
	}

	grace := time.NewTimer(c.GracePeriod)
	defer grace.Stop()

	select {
	case <-t.Done():
		return ShutdownResult{Elapsed: time.Since(start)}, nil
	case <-grace.C:
	case <-ctx.Done():
	}

	// The exit may have raced the timer.
	select {
	case <-t.Done():
		return ShutdownResult{Elapsed: time.Since(start)}, nil
	default:
	}

	log.Warn().Dur("grace_period", c.GracePeriod).Msg("process still running, sending kill")
	if err := t.Signal(os.Kill); err != nil {
		log.Warn().Err(err).Msg("kill signal failed")
	}

	kill := time.NewTimer(c.KillTimeout)
	defer kill.Stop()

	select {
	case <-t.Done():
		return ShutdownResult{Escalated: true, Elapsed: time.Since(start)}, nil
	case <-kill.C:
		return ShutdownResult{Escalated: true, Elapsed: time.Since(start)}, ErrProcessUnkillable
	}
}
