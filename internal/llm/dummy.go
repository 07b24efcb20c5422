package llm

import (
	"context"
	"fmt"
	"sync"
)

// DummyProvider returns scripted responses in order. Useful for tests and
// for running the agent loop offline.
type DummyProvider struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	calls     int
}

// NewDummyProvider scripts one step per entry: a nil error pairs with the
// response at the same index, a non-nil error is returned instead.
func NewDummyProvider(responses []*Response, errs []error) *DummyProvider {
	return &DummyProvider{responses: responses, errs: errs}
}

func (p *DummyProvider) Name() string { return "dummy" }

// Calls reports how many times Complete has been invoked.
func (p *DummyProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *DummyProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) && p.responses[i] != nil {
		return p.responses[i], nil
	}
	return nil, fmt.Errorf("dummy provider: no scripted response for call %d", i)
}
