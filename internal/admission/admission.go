package admission

import "sync"

// Controller bundles the rate limiter with a registry of named circuit
// breakers, created lazily by name. In this module only the metadata
// store's tier calls go through a breaker ("metadata-store"); subprocess
// runs and web-IDE helper launches are not guarded by one.
type Controller struct {
	limiter *RateLimiter

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
}

// NewController returns a Controller whose rate limiter is configured
// from rlCfg and whose lazily-created breakers default to cbCfg.
func NewController(rlCfg RateLimitConfig, cbCfg CircuitBreakerConfig) *Controller {
	return &Controller{
		limiter:  NewRateLimiter(rlCfg),
		breakers: make(map[string]*CircuitBreaker),
		defaults: cbCfg,
	}
}

// Admit consumes one point from identity's bucket and returns
// ErrRateLimited if exhausted.
func (c *Controller) Admit(identity string) error {
	return c.limiter.Consume(identity, 1)
}

// Breaker returns the named circuit breaker, creating it with the
// controller's default configuration on first use.
func (c *Controller) Breaker(name string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[name]; ok {
		return b
	}
	b := NewCircuitBreaker(name, c.defaults)
	c.breakers[name] = b
	return b
}

// Guard runs fn through the named breaker, creating it on first use.
func (c *Controller) Guard(name string, fn func() error) error {
	return c.Breaker(name).Execute(fn)
}

// Breakers returns a snapshot of all breakers created so far, keyed by
// name, for health reporting.
func (c *Controller) Breakers() map[string]*CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*CircuitBreaker, len(c.breakers))
	for k, v := range c.breakers {
		out[k] = v
	}
	return out
}
