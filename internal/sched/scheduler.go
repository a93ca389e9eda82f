package sched

import (
	"context"
	"fmt"

	"github.com/sdboyer/constext"

	"github.com/forgelang/forge/internal/unitgraph"
)

// JobFunc runs one unit's build. It reports progress through emit and
// returns the job's terminal error, if any.
type JobFunc func(ctx context.Context, unit unitgraph.Unit, emit func(Message)) error

// Scheduler drives a DependencyQueue keyed by unit key and Artifact,
// running up to `jobs` JobFuncs concurrently. Grounded on
// original_source's dependency_queue.rs for the queue itself (see
// queue.go) plus spec.md §4.G's worker-message and panic-safety rules.
type Scheduler struct {
	queue     *DependencyQueue[string, Artifact, unitgraph.Unit]
	jobCtx    map[string]context.Context
	jobs      int
	work      JobFunc
	onMessage func(unitKey string, m Message)
}

// New builds a Scheduler with a concurrency bound of jobs (minimum 1).
func New(jobs int, work JobFunc, onMessage func(string, Message)) *Scheduler {
	if jobs < 1 {
		jobs = 1
	}
	if onMessage == nil {
		onMessage = func(string, Message) {}
	}
	return &Scheduler{
		queue:     NewDependencyQueue[string, Artifact, unitgraph.Unit](),
		jobCtx:    make(map[string]context.Context),
		jobs:      jobs,
		work:      work,
		onMessage: onMessage,
	}
}

// AddUnit registers one job. deps lists the (unitKey, Artifact) pairs
// that must be finished before this job may start; a dependent that
// only needs the library's metadata should depend on ArtifactMetadata,
// not ArtifactAll, so it can start as soon as that is signaled. ctx, if
// non-nil, is merged with the Scheduler's run context so the job can be
// cancelled individually as well as globally.
func (s *Scheduler) AddUnit(key string, u unitgraph.Unit, ctx context.Context, deps []UnitDep) {
	edges := make([]depEdge[string, Artifact], len(deps))
	for i, d := range deps {
		edges[i] = DependsOn(d.UnitKey, d.Artifact)
	}
	s.queue.Queue(key, u, edges)
	if ctx != nil {
		s.jobCtx[key] = ctx
	}
}

// UnitDep names one dependency edge passed to AddUnit.
type UnitDep struct {
	UnitKey  string
	Artifact Artifact
}

type jobEvent struct {
	key      string
	artifact Artifact
	done     bool
	err      error
}

// Run executes every queued job, respecting dependency order and the
// concurrency bound. If no units were ever added, Run returns
// immediately with a nil error (spec.md §4.G's fresh-rebuild shortcut:
// the caller is expected to never call AddUnit for fresh units).
func (s *Scheduler) Run(ctx context.Context) error {
	s.queue.QueueFinished()
	if s.queue.IsEmpty() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan jobEvent)
	active := 0
	var firstErr error

	for {
		for active < s.jobs {
			key, unit, ok := s.queue.Dequeue()
			if !ok {
				break
			}
			active++
			go s.runJob(runCtx, key, unit, events)
		}
		if active == 0 {
			break
		}
		e := <-events
		if e.done {
			active--
			if e.err != nil && firstErr == nil {
				firstErr = e.err
				cancel()
			}
			s.queue.Finish(e.key, ArtifactMetadata)
			s.queue.Finish(e.key, ArtifactAll)
			continue
		}
		s.queue.Finish(e.key, e.artifact)
	}

	return firstErr
}

// runJob executes one job, guaranteeing a terminal event is always
// sent even if the job panics (spec.md §4.G panic safety: "a
// Finish(All, Err) is guaranteed via a scope-exit hook").
func (s *Scheduler) runJob(runCtx context.Context, key string, unit unitgraph.Unit, events chan<- jobEvent) {
	jobCtx := runCtx
	if custom, ok := s.jobCtx[key]; ok {
		merged, release := constext.Merge(runCtx, custom)
		defer release()
		jobCtx = merged
	}

	defer func() {
		if r := recover(); r != nil {
			events <- jobEvent{key: key, done: true, err: fmt.Errorf("panic building %s: %v", key, r)}
		}
	}()

	emit := func(m Message) {
		s.onMessage(key, m)
		if _, ok := m.(RmetaProducedMessage); ok {
			events <- jobEvent{key: key, artifact: ArtifactMetadata}
		}
	}

	err := s.work(jobCtx, unit, emit)
	events <- jobEvent{key: key, done: true, err: err}
}
