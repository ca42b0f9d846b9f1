package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/authgate/auth-core/internal/clock"
)

type memoryState struct {
	mu          sync.Mutex
	attempts    int
	windowEnds  time.Time
	blockedTill time.Time
}

// MemoryPolicy implements AttemptPolicy in process memory with per-key
// synchronization. For tests and single-node development profiles only:
// counters are not shared across instances.
type MemoryPolicy struct {
	mu     sync.Mutex
	clock  clock.Clock
	config *Config
	states map[string]*memoryState
}

// NewMemoryPolicy creates an in-memory policy.
func NewMemoryPolicy(cfg *Config, c clock.Clock) (*MemoryPolicy, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ratelimit config: %w", err)
	}
	if c == nil {
		c = clock.System()
	}
	return &MemoryPolicy{clock: c, config: cfg, states: make(map[string]*memoryState)}, nil
}

func (p *MemoryPolicy) state(key string) *memoryState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[key]
	if !ok {
		st = &memoryState{}
		p.states[key] = st
	}
	return st
}

func (p *MemoryPolicy) RegisterAttempt(ctx context.Context, key string) (Decision, error) {
	st := p.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := p.clock.Now()

	if st.blockedTill.After(now) {
		return Decision{RetryAfter: st.blockedTill.Sub(now)}, nil
	}

	if !st.windowEnds.After(now) {
		st.attempts = 0
	}
	if st.attempts == 0 {
		st.windowEnds = now.Add(p.config.Window)
	}
	st.attempts++

	if st.attempts > p.config.MaxAttempts {
		st.blockedTill = now.Add(p.config.BlockDuration)
		st.attempts = 0
		st.windowEnds = time.Time{}
		return Decision{RetryAfter: p.config.BlockDuration}, nil
	}

	return Decision{Allowed: true}, nil
}

func (p *MemoryPolicy) ResetAttempts(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.states, key)
	return nil
}
