package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultIdleTimeout    = 30 * time.Minute
	defaultMaxControllers = 10000
	sweepInterval         = time.Minute
)

// Registry maps interaction ids to their controllers. Each browser holds
// one id in a cookie, so users never share a session.
//
// Controllers idle for longer than the idle timeout are logged out and
// forgotten, and the registry never holds more than its maximum. Both
// limits are enforced on access.
type Registry struct {
	newController func() *Controller
	logger        *slog.Logger
	idle          time.Duration
	max           int
	now           func() time.Time

	mu    sync.Mutex
	items map[string]*entry
	swept time.Time
}

type entry struct {
	ctrl *Controller
	seen time.Time
}

// NewRegistry creates a registry that builds controllers with opts.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	limit := opts.MaxControllers
	if limit <= 0 {
		limit = defaultMaxControllers
	}
	return &Registry{
		newController: func() *Controller { return NewController(opts) },
		logger:        logger,
		idle:          idle,
		max:           limit,
		now:           time.Now,
		items:         make(map[string]*entry),
	}
}

// Get returns the controller for id and marks it as seen. An expired
// controller is logged out and reported as missing.
func (r *Registry) Get(id string) (*Controller, bool) {
	now := r.now()

	r.mu.Lock()
	e, ok := r.items[id]
	if ok && now.Sub(e.seen) > r.idle {
		delete(r.items, id)
		r.mu.Unlock()
		r.logger.Debug("visitor expired", "idle", now.Sub(e.seen).Round(time.Second))
		e.ctrl.Logout()
		return nil, false
	}
	if ok {
		e.seen = now
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Create registers a new controller under a fresh id, first dropping
// expired controllers and, at capacity, the least recently seen one.
func (r *Registry) Create() (string, *Controller) {
	id := uuid.NewString()
	c := r.newController()
	now := r.now()

	r.mu.Lock()
	dropped := r.sweepLocked(now)
	if len(r.items) >= r.max {
		dropped = append(dropped, r.evictOldestLocked())
	}
	r.items[id] = &entry{ctrl: c, seen: now}
	r.mu.Unlock()

	for _, old := range dropped {
		old.Logout()
	}
	return id, c
}

// sweepLocked removes expired entries, at most once per sweepInterval.
func (r *Registry) sweepLocked(now time.Time) []*Controller {
	if now.Sub(r.swept) < sweepInterval {
		return nil
	}
	r.swept = now

	var dropped []*Controller
	for id, e := range r.items {
		if now.Sub(e.seen) > r.idle {
			delete(r.items, id)
			dropped = append(dropped, e.ctrl)
		}
	}
	if len(dropped) > 0 {
		r.logger.Debug("expired idle visitors", "count", len(dropped), "remaining", len(r.items))
	}
	return dropped
}

func (r *Registry) evictOldestLocked() *Controller {
	var (
		oldestID string
		oldest   *entry
	)
	for id, e := range r.items {
		if oldest == nil || e.seen.Before(oldest.seen) {
			oldestID, oldest = id, e
		}
	}
	delete(r.items, oldestID)
	r.logger.Debug("visitor limit reached; dropping least recently seen", "max", r.max)
	return oldest.ctrl
}

// GetOrCreate returns the controller for id, creating one under a new id
// when id is unknown or expired.
func (r *Registry) GetOrCreate(id string) (string, *Controller) {
	if c, ok := r.Get(id); ok {
		return id, c
	}
	return r.Create()
}

// Remove logs out and forgets the controller for id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("logout for unknown visitor; nothing to close")
		return
	}
	e.ctrl.Logout()
}

// Len returns the number of registered controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// CloseAll logs out every controller, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range items {
		e.ctrl.Logout()
	}
}
