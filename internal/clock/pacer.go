package clock

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultPeriod is the wall-clock length of one tick in realtime mode.
const DefaultPeriod = time.Millisecond

// Pacer gates each tick. Wait returns when the next tick may happen.
type Pacer interface {
	Wait(ctx context.Context) error
	Stop()
}

// Virtual never waits; ticks advance as fast as the CPU executes them.
type Virtual struct{}

// Wait returns immediately unless ctx is already done.
func (Virtual) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Stop is a no-op.
func (Virtual) Stop() {}

// Realtime releases one tick per period of a time.Ticker.
type Realtime struct {
	ticker *time.Ticker
}

// NewRealtime creates a pacer firing every period.
func NewRealtime(period time.Duration) *Realtime {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Realtime{ticker: time.NewTicker(period)}
}

// Wait blocks until the next ticker fire or until ctx is done.
func (r *Realtime) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ticker.C:
		return nil
	}
}

// Stop releases the ticker.
func (r *Realtime) Stop() {
	r.ticker.Stop()
}

// Pacing modes accepted by NewPacer.
const (
	PacingVirtual  = "virtual"
	PacingRealtime = "realtime"
)

// NewPacer builds a pacer by mode name.
func NewPacer(mode string, period time.Duration) (Pacer, error) {
	switch strings.ToLower(mode) {
	case "", PacingVirtual:
		return Virtual{}, nil
	case PacingRealtime:
		return NewRealtime(period), nil
	}
	return nil, fmt.Errorf("unknown pacing mode %q (want virtual or realtime)", mode)
}
