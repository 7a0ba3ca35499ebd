// Package local is the default provider: a mutex-guarded map that never
// evicts on its own. Expiry is left to the cache's sweep.
package local

import (
	"context"
	"sync"
	"time"
)

type Provider struct {
	mu     sync.RWMutex
	m      map[string][]byte
	closed bool
}

func New() *Provider {
	return &Provider{m: make(map[string][]byte)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	b, ok := p.m[key]
	p.mu.RUnlock()
	return b, ok, nil
}

// Set copies value so callers may reuse their buffer.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	cp := append([]byte(nil), value...)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, nil
	}
	p.m[key] = cp
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

func (p *Provider) Close(_ context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.m = make(map[string][]byte)
	p.mu.Unlock()
	return nil
}
