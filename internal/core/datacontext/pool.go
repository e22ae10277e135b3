package datacontext

import (
	"context"
	"sync"
	"time"

	"codeart/internal/core/apperror"
	"codeart/internal/core/lock"
	"codeart/pkg/logger"
)

// PoolConfig configures Pool behavior.
type PoolConfig struct {
	MaxIdle     int           // Cleared contexts kept for reuse (0 = keep none)
	MaxActive   int           // Sessions served at once (0 = unlimited)
	IdleTimeout time.Duration // Drop idle contexts after inactivity (0 = never)
}

// DefaultPoolConfig returns production-safe defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdle:     64,
		MaxActive:   0,
		IdleTimeout: 300 * time.Second,
	}
}

type idleContext struct {
	dc       *DataContext
	lastUsed time.Time
}

// Pool recycles data contexts and pins each one to a single session.
// Thread-safe for concurrent access.
type Pool struct {
	config PoolConfig
	opts   Options

	mu      sync.Mutex
	active  map[string]*DataContext // sessionID -> pinned context
	idle    []idleContext           // LIFO
	created int
	evicted int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewPool creates a pool. opts are used for every context it creates.
func NewPool(cfg PoolConfig, opts Options, log *logger.Logger) *Pool {
	if log == nil {
		log = logger.Default()
	}
	if opts.Logger == nil {
		opts.Logger = log
	}
	// Contexts of one pool must contend on the same lock table.
	if opts.Locker == nil {
		opts.Locker = lock.NewMemory()
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		config: cfg,
		opts:   opts,
		active: make(map[string]*DataContext),
		ctx:    ctx,
		cancel: cancel,
		log:    log.WithComponent("data-context-pool"),
	}

	if cfg.IdleTimeout > 0 {
		p.wg.Add(1)
		go p.evictionLoop()
	}

	p.log.Infow("data context pool started",
		"max_idle", cfg.MaxIdle,
		"max_active", cfg.MaxActive,
		"idle_timeout", cfg.IdleTimeout,
	)

	return p
}

// Acquire returns the context pinned to sessionID, borrowing or creating one
// on first use. Every Acquire must be paired with a Release.
func (p *Pool) Acquire(ctx context.Context, sessionID string) (*DataContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, apperror.NewNoDataContext().WithDetail("reason", "pool closed")
	}

	// Fast path: session already has a context
	if dc, ok := p.active[sessionID]; ok {
		dc.openCount++
		return dc, nil
	}

	if p.config.MaxActive > 0 && len(p.active) >= p.config.MaxActive {
		return nil, apperror.NewContextPoolExhausted(p.config.MaxActive)
	}

	var dc *DataContext
	if n := len(p.idle); n > 0 {
		dc = p.idle[n-1].dc
		p.idle[n-1] = idleContext{}
		p.idle = p.idle[:n-1]
	} else {
		dc = New(p.opts)
		p.created++
	}

	dc.openCount = 1
	p.active[sessionID] = dc
	p.updateGaugesLocked()
	return dc, nil
}

// Release closes one Acquire. The last one closes the context (rolling back
// an unfinished transaction), unpins it and returns it to the idle list.
func (p *Pool) Release(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	dc, ok := p.active[sessionID]
	if !ok {
		p.mu.Unlock()
		p.log.WithContext(ctx).Warnw("release of unknown session", "session_id", sessionID)
		return nil
	}
	dc.openCount--
	if dc.openCount > 0 {
		p.mu.Unlock()
		return nil
	}
	delete(p.active, sessionID)
	p.mu.Unlock()

	err := dc.Close(ctx)
	if err != nil {
		p.log.WithContext(ctx).Warnw("data context closed with error", "session_id", sessionID, "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed && len(p.idle) < p.config.MaxIdle {
		p.idle = append(p.idle, idleContext{dc: dc, lastUsed: time.Now()})
	}
	p.updateGaugesLocked()
	return err
}

// evictionLoop drops idle contexts periodically.
func (p *Pool) evictionLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			p.evictIdle(now)
		}
	}
}

// evictIdle drops idle contexts unused since before now-IdleTimeout.
func (p *Pool) evictIdle(now time.Time) int {
	threshold := now.Add(-p.config.IdleTimeout)

	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.idle[:0]
	evicted := 0
	for _, ic := range p.idle {
		if ic.lastUsed.Before(threshold) {
			evicted++
			continue
		}
		kept = append(kept, ic)
	}
	clear(p.idle[len(kept):])
	p.idle = kept

	if evicted > 0 {
		p.evicted += evicted
		poolEvictionsTotal.Add(float64(evicted))
		p.updateGaugesLocked()
		p.log.Debugw("evicted idle data contexts", "count", evicted, "idle", len(p.idle))
	}
	return evicted
}

// Close stops eviction and closes every pinned context.
func (p *Pool) Close(ctx context.Context) {
	p.log.Infow("shutting down data context pool...")

	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.closed = true
	pinned := make([]*DataContext, 0, len(p.active))
	for sessionID, dc := range p.active {
		pinned = append(pinned, dc)
		delete(p.active, sessionID)
	}
	p.idle = nil
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, dc := range pinned {
		if err := dc.Close(ctx); err != nil {
			p.log.Warnw("close pinned data context", "data_context_id", dc.ID(), "error", err)
		}
	}

	p.log.Infow("data context pool closed", "contexts_closed", len(pinned))
}

// PoolStats contains pool runtime statistics.
type PoolStats struct {
	Active  int `json:"active"`
	Idle    int `json:"idle"`
	Created int `json:"created"`
	Evicted int `json:"evicted"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Active:  len(p.active),
		Idle:    len(p.idle),
		Created: p.created,
		Evicted: p.evicted,
	}
}

func (p *Pool) updateGaugesLocked() {
	poolContexts.WithLabelValues("active").Set(float64(len(p.active)))
	poolContexts.WithLabelValues("idle").Set(float64(len(p.idle)))
}
