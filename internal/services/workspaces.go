package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sales-dashboard/internal/auth"
)

// Workspaces keeps one Workspace per signed-in subject and closes those
// left idle for longer than the TTL.
type Workspaces struct {
	ctx    context.Context
	deps   Deps
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	items map[string]*Workspace
}

func NewWorkspaces(ctx context.Context, deps Deps, ttl time.Duration) *Workspaces {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspaces{
		ctx:    ctx,
		deps:   deps,
		ttl:    ttl,
		logger: logger,
		items:  make(map[string]*Workspace),
	}
}

// Get returns the workspace for s.Subject, creating it on first use. A
// newer token for an existing subject replaces the stored one.
func (r *Workspaces) Get(s auth.Session) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.items[s.Subject]; ok {
		if w.Session().Token != s.Token {
			w.UpdateSession(s)
		}
		w.touch()
		return w
	}

	w := NewWorkspace(r.ctx, s, r.deps)
	r.items[s.Subject] = w
	r.logger.Info("workspace created", "subject", s.Subject, "workspaces", len(r.items))
	return w
}

// Lookup returns the existing workspace for subject, if any.
func (r *Workspaces) Lookup(subject string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.items[subject]
	return w, ok
}

// Drop closes and forgets the workspace of subject.
func (r *Workspaces) Drop(subject string) {
	r.mu.Lock()
	w, ok := r.items[subject]
	delete(r.items, subject)
	r.mu.Unlock()

	if ok {
		w.Close()
		r.logger.Info("workspace closed", "subject", subject)
	}
}

// Sweep closes workspaces idle for longer than the TTL and returns how many
// were closed.
func (r *Workspaces) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*Workspace
	for subject, w := range r.items {
		if w.idleSince(now) > r.ttl {
			expired = append(expired, w)
			delete(r.items, subject)
		}
	}
	r.mu.Unlock()

	for _, w := range expired {
		w.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("idle workspaces closed", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (r *Workspaces) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Close closes every workspace.
func (r *Workspaces) Close(ctx context.Context) error {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, w := range items {
		w.Close()
	}
	return ctx.Err()
}

func (r *Workspaces) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Stats summarises the registry for the admin endpoint.
func (r *Workspaces) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[LoadState]int)
	for _, w := range r.items {
		state, _ := w.store.State()
		states[state]++
	}
	return map[string]any{
		"workspaces":  len(r.items),
		"session_ttl": r.ttl.String(),
		"loading":     states[LoadLoading],
		"ready":       states[LoadReady],
		"failed":      states[LoadFailed],
	}
}
