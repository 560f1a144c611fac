// Package mock provides a scripted provider for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentsmith/agentos/provider"
)

// Call records one Generate invocation.
type Call struct {
	Messages []provider.Message
	Opts     provider.Options
}

// Provider returns scripted responses in order and records every call.
// After the script runs out it returns ErrExhausted unless Repeat is set,
// in which case the last response repeats.
type Provider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	next      int
	calls     []Call

	// Repeat makes the final scripted response repeat indefinitely.
	Repeat bool

	// GenerateFunc, when set, overrides the scripted responses entirely.
	GenerateFunc func(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error)
}

// New creates a mock provider scripted with the given responses.
func New(responses ...string) *Provider {
	return &Provider{responses: responses, errs: make([]error, len(responses))}
}

func (p *Provider) Name() string { return "mock" }

// Enqueue appends a response to the script.
func (p *Provider) Enqueue(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, content)
	p.errs = append(p.errs, nil)
}

// EnqueueError appends an error step to the script.
func (p *Provider) EnqueueError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, "")
	p.errs = append(p.errs, err)
}

func (p *Provider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, messages, opts)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Messages: messages, Opts: opts})

	i := p.next
	if i >= len(p.responses) {
		if p.Repeat && len(p.responses) > 0 {
			i = len(p.responses) - 1
		} else {
			return nil, fmt.Errorf("mock: script exhausted after %d responses", len(p.responses))
		}
	} else {
		p.next++
	}
	if p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &provider.Response{Content: p.responses[i]}, nil
}

// Calls returns a copy of the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Generate invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
