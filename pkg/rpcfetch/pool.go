package rpcfetch

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Failover defaults.
const (
	DefaultMaxFailures = 3
	DefaultCooldown    = 30 * time.Second
)

// Endpoint is one RPC URL and what the pool has learned about it.
type Endpoint struct {
	URL       string
	Failures  int
	LastError error
	Latency   time.Duration
	// BenchedUntil is set once Failures reaches the pool's limit.
	BenchedUntil time.Time
}

// Pool picks the endpoint for each call and is told how the call went.
type Pool interface {
	Next(ctx context.Context) (*Endpoint, error)
	Failed(url string, err error)
	Succeeded(url string, latency time.Duration)
}

// FailoverPool sends every call to the first endpoint in configuration order
// that is not benched. An endpoint is benched for the cooldown after
// MaxFailures consecutive failures. When every endpoint is benched, the one
// whose bench ends first is used anyway.
type FailoverPool struct {
	MaxFailures int
	Cooldown    time.Duration

	mu        sync.Mutex
	endpoints []*Endpoint
	now       func() time.Time
}

// NewFailoverPool creates a pool over urls, in order of preference.
func NewFailoverPool(urls []string) *FailoverPool {
	eps := make([]*Endpoint, len(urls))
	for i, u := range urls {
		eps[i] = &Endpoint{URL: u}
	}
	return &FailoverPool{
		MaxFailures: DefaultMaxFailures,
		Cooldown:    DefaultCooldown,
		endpoints:   eps,
		now:         time.Now,
	}
}

// Next returns the preferred usable endpoint.
func (p *FailoverPool) Next(ctx context.Context) (*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	now := p.now()
	soonest := p.endpoints[0]
	for _, ep := range p.endpoints {
		if !now.Before(ep.BenchedUntil) {
			return ep, nil
		}
		if ep.BenchedUntil.Before(soonest.BenchedUntil) {
			soonest = ep
		}
	}
	return soonest, nil
}

// Failed records a transport-level failure.
func (p *FailoverPool) Failed(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.find(url)
	if ep == nil {
		return
	}
	ep.Failures++
	ep.LastError = err
	if ep.Failures >= max(p.MaxFailures, 1) {
		ep.BenchedUntil = p.now().Add(p.Cooldown)
	}
}

// Succeeded clears the endpoint's failure count.
func (p *FailoverPool) Succeeded(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ep := p.find(url); ep != nil {
		ep.Failures = 0
		ep.LastError = nil
		ep.Latency = latency
		ep.BenchedUntil = time.Time{}
	}
}

// Benched returns the number of endpoints currently benched.
func (p *FailoverPool) Benched() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for _, ep := range p.endpoints {
		if now.Before(ep.BenchedUntil) {
			n++
		}
	}
	return n
}

func (p *FailoverPool) find(url string) *Endpoint {
	for _, ep := range p.endpoints {
		if ep.URL == url {
			return ep
		}
	}
	return nil
}

// String joins the endpoint URLs for logs and error messages.
func (p *FailoverPool) String() string {
	urls := make([]string, len(p.endpoints))
	for i, ep := range p.endpoints {
		urls[i] = ep.URL
	}
	return strings.Join(urls, ",")
}
