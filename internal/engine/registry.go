package engine

import (
	"sync"
	"time"
)

// Registry maps campaign ids to their live executions and pending
// auto-resume timers. It is an explicit object passed by handle, never
// ambient package state, so two controllers in tests cannot collide.
type Registry struct {
	mu           sync.Mutex
	executions   map[string]*Execution
	resumeTimers map[string]*time.Timer
}

func NewRegistry() *Registry {
	return &Registry{
		executions:   make(map[string]*Execution),
		resumeTimers: make(map[string]*time.Timer),
	}
}

// Register installs an execution; reports false if one already exists.
func (r *Registry) Register(id string, e *Execution) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executions[id]; exists {
		return false
	}
	r.executions[id] = e
	return true
}

func (r *Registry) Get(id string) *Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executions[id]
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executions, id)
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executions)
}

// SetResumeTimer arms a one-shot auto-resume, replacing any pending one.
func (r *Registry) SetResumeTimer(id string, t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.resumeTimers[id]; ok {
		old.Stop()
	}
	r.resumeTimers[id] = t
}

// CancelResumeTimer stops a pending auto-resume, if any. Called on start,
// operator pause, and stop, so no orphaned callback can fire later.
func (r *Registry) CancelResumeTimer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.resumeTimers[id]; ok {
		t.Stop()
		delete(r.resumeTimers, id)
	}
}

// CancelAllResumeTimers is part of process shutdown.
func (r *Registry) CancelAllResumeTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.resumeTimers {
		t.Stop()
		delete(r.resumeTimers, id)
	}
}
