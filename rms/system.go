// Package rms implements the provenance kernel's Registry, Execution
// Engine, and Deferred-Plan Planner as one cooperating type, mirroring
// the original implementation's single combined class: the three
// components share the same in-memory caches, the same coarse mutation
// lock, and the same event-firing path, so keeping them apart in
// separate Go types would only recreate that coupling through an extra
// layer of indirection.
package rms

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"rmscore.evalgo.org/catalog"
	"rmscore.evalgo.org/content"
	"rmscore.evalgo.org/model"
)

// PipeHandle bundles a registered Pipe's persisted identity with the
// live Go function it was registered with. Only the handle, never the
// raw function, is ever exposed to callers -- this takes the place of
// the original's serialized-callable round trip.
type PipeHandle struct {
	Pipe       *model.Pipe
	Arity      model.PipeArity
	Func       model.PipeFunc
	OutputFunc model.OutputFunc
}

// System is the Registry + Execution Engine + Deferred-Plan Planner.
// All public methods take the coarse lock for their cache/catalog
// mutation and release it before invoking any pipe body or listener, so
// user code and listener callbacks never run while the lock is held.
type System struct {
	mu sync.Mutex

	cat     *catalog.Catalog
	content content.Store

	pipes     map[string]*PipeHandle
	tasks     map[string]*model.Task
	resources map[string]*model.Resource
	files     map[string]*model.FileResource
	virtuals  map[string]*model.VirtualResource
	unruns    map[string]*model.UnrunTask

	listeners []func([]model.Event)
	scriptID  string

	// runGroup coalesces concurrent same-process Run calls bound to the
	// same pipe+args, so two goroutines racing on an identical
	// invocation perform the pipe body once instead of twice. This is a
	// same-process optimization only -- the Catalog's dedup check is
	// still the source of truth, and two separate processes racing on
	// the same invocation still both execute (at-most-one-wins commit,
	// per the kernel's advisory dedup stance).
	runGroup singleflight.Group
}

// New constructs a System over an already-open Catalog Store and
// Content Store. Caches start empty and warm lazily via Get/refetch.
func New(cat *catalog.Catalog, store content.Store) *System {
	return &System{
		cat:       cat,
		content:   store,
		pipes:     make(map[string]*PipeHandle),
		tasks:     make(map[string]*model.Task),
		resources: make(map[string]*model.Resource),
		files:     make(map[string]*model.FileResource),
		virtuals:  make(map[string]*model.VirtualResource),
		unruns:    make(map[string]*model.UnrunTask),
	}
}

// SetScriptID sets the scalar attached to every new Task's info from
// this point forward, under model.InfoScriptID.
func (s *System) SetScriptID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scriptID = id
}

// RegisterRMSUpdateListener appends cb to the listener list. Listeners
// fire synchronously, in registration order, after every committed
// mutation; a panicking listener is recovered and does not prevent
// later listeners from running.
func (s *System) RegisterRMSUpdateListener(cb func([]model.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, cb)
}

// fireEvents must be called without the lock held.
func (s *System) fireEvents(events []model.Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	listeners := append([]func([]model.Event){}, s.listeners...)
	s.mu.Unlock()

	for _, cb := range listeners {
		callListener(cb, events)
	}
}

func callListener(cb func([]model.Event), events []model.Event) {
	defer func() { _ = recover() }()
	cb(events)
}

// entity is implemented by all six entity kinds the Registry caches, so generic cache/lineage code can operate uniformly.
type entity = model.Entity
