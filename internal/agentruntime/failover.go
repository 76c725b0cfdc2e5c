package agentruntime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// providerState tracks one provider's recent failures, mirroring the
// teacher's FailoverOrchestrator circuit breaker (internal/agent/failover.go)
// collapsed to the synchronous Provider contract.
type providerState struct {
	failures    int
	circuitOpen bool
	openedAt    time.Time
}

// FailoverProvider tries each wrapped provider in order, skipping any whose
// circuit is open, and opens a provider's circuit after threshold
// consecutive failures for cooldown duration.
type FailoverProvider struct {
	providers []Provider
	threshold int
	cooldown  time.Duration

	mu     sync.Mutex
	states map[string]*providerState
}

// NewFailoverProvider builds a FailoverProvider over providers, tried in the
// given order. threshold <= 0 defaults to 3; cooldown <= 0 defaults to 30s.
func NewFailoverProvider(providers []Provider, threshold int, cooldown time.Duration) *FailoverProvider {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	states := make(map[string]*providerState, len(providers))
	for _, p := range providers {
		states[p.Name()] = &providerState{}
	}
	return &FailoverProvider{providers: providers, threshold: threshold, cooldown: cooldown, states: states}
}

func (f *FailoverProvider) Name() string { return "failover" }

func (f *FailoverProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for _, p := range f.providers {
		if !f.available(p.Name()) {
			continue
		}
		resp, err := p.Complete(ctx, req)
		if err == nil {
			f.recordSuccess(p.Name())
			return resp, nil
		}
		lastErr = err
		f.recordFailure(p.Name())
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("agentruntime: no provider available")
	}
	return nil, lastErr
}

func (f *FailoverProvider) available(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.states[name]
	if s == nil || !s.circuitOpen {
		return true
	}
	if time.Since(s.openedAt) > f.cooldown {
		s.circuitOpen = false
		s.failures = 0
		return true
	}
	return false
}

func (f *FailoverProvider) recordSuccess(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.states[name]; s != nil {
		s.failures = 0
		s.circuitOpen = false
	}
}

func (f *FailoverProvider) recordFailure(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.states[name]
	if s == nil {
		return
	}
	s.failures++
	if s.failures >= f.threshold {
		s.circuitOpen = true
		s.openedAt = time.Now()
	}
}
