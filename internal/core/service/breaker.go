package service

import (
	"errors"
	"sync"
	"time"

	"github.com/rl1809/record-store/internal/config"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerState uint8

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker stops calls to a failing dependency. Threshold consecutive
// failures open it; after OpenTimeout up to MaxHalfOpen trial calls are let
// through and the first outcome decides whether it closes or reopens.
type Breaker struct {
	mu       sync.Mutex
	cfg      config.Breaker
	state    BreakerState
	failures uint32
	trials   uint32
	openedAt time.Time
	now      func() time.Time
}

func NewBreaker(cfg config.Breaker) *Breaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = 1
	}
	if cfg.MaxHalfOpen == 0 {
		cfg.MaxHalfOpen = 1
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.trials = 1
		return nil
	case BreakerHalfOpen:
		if b.trials >= b.cfg.MaxHalfOpen {
			return ErrBreakerOpen
		}
		b.trials++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
	b.trials = 0
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.trip()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.trip()
		}
	}
}

// Abandon releases a half-open trial slot without recording an outcome.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.trials > 0 {
		b.trials--
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.trials = 0
}
