// Package sched computes unit fingerprints and schedules a unit graph's
// jobs across a bounded worker pool (spec.md §4.G, component G).
package sched

import "fmt"

// depEdge is one (node, edge) dependency pair: a job can wait on a
// specific artifact of a node rather than the node's full completion,
// mirroring the original implementation's "metadata vs full build"
// distinction.
type depEdge[N comparable, E comparable] struct {
	node N
	edge E
}

type queueEntry[N comparable, E comparable, V any] struct {
	deps  map[depEdge[N, E]]bool
	value V
}

// DependencyQueue schedules nodes for dequeue once every dependency
// edge they wait on has been marked Finish-ed. Ported directly from
// original_source's dependency_queue.rs: same dep_map/reverse_dep_map
// split, same memoized topological-depth dequeue heuristic (the ready
// node with the greatest depth goes first, to keep long dependency
// chains hot).
type DependencyQueue[N comparable, E comparable, V any] struct {
	depMap        map[N]*queueEntry[N, E, V]
	reverseDepMap map[N]map[E]map[N]bool
	depth         map[N]int
}

func NewDependencyQueue[N comparable, E comparable, V any]() *DependencyQueue[N, E, V] {
	return &DependencyQueue[N, E, V]{
		depMap:        make(map[N]*queueEntry[N, E, V]),
		reverseDepMap: make(map[N]map[E]map[N]bool),
	}
}

// Queue registers a new node with the edges it is waiting on. Queue
// must not be called twice for the same key.
func (q *DependencyQueue[N, E, V]) Queue(key N, value V, dependencies []depEdge[N, E]) {
	if _, exists := q.depMap[key]; exists {
		panic(fmt.Sprintf("sched: key %v queued twice", key))
	}
	deps := make(map[depEdge[N, E]]bool, len(dependencies))
	for _, d := range dependencies {
		deps[d] = true
		if q.reverseDepMap[d.node] == nil {
			q.reverseDepMap[d.node] = make(map[E]map[N]bool)
		}
		if q.reverseDepMap[d.node][d.edge] == nil {
			q.reverseDepMap[d.node][d.edge] = make(map[N]bool)
		}
		q.reverseDepMap[d.node][d.edge][key] = true
	}
	q.depMap[key] = &queueEntry[N, E, V]{deps: deps, value: value}
}

// DependsOn builds a depEdge for use with Queue.
func DependsOn[N comparable, E comparable](node N, edge E) depEdge[N, E] {
	return depEdge[N, E]{node: node, edge: edge}
}

// QueueFinished computes each node's topological depth. Call once after
// every Queue call, before the first Dequeue.
func (q *DependencyQueue[N, E, V]) QueueFinished() {
	q.depth = make(map[N]int, len(q.depMap))
	inProgress := make(map[N]bool)
	for key := range q.depMap {
		q.depthOf(key, inProgress)
	}
}

func (q *DependencyQueue[N, E, V]) depthOf(key N, inProgress map[N]bool) int {
	if d, ok := q.depth[key]; ok {
		return d
	}
	if inProgress[key] {
		panic(fmt.Sprintf("sched: cycle in DependencyQueue at %v", key))
	}
	inProgress[key] = true

	max := 0
	for _, byEdge := range q.reverseDepMap[key] {
		for dep := range byEdge {
			if d := q.depthOf(dep, inProgress); d > max {
				max = d
			}
		}
	}
	delete(inProgress, key)
	depth := 1 + max
	q.depth[key] = depth
	return depth
}

// Dequeue returns a node with zero remaining dependencies, preferring
// the one with the greatest topological depth. Returns ok=false if
// nothing is ready.
func (q *DependencyQueue[N, E, V]) Dequeue() (key N, value V, ok bool) {
	bestDepth := -1
	var bestKey N
	found := false
	for k, e := range q.depMap {
		if len(e.deps) != 0 {
			continue
		}
		if d := q.depth[k]; !found || d > bestDepth {
			bestKey, bestDepth, found = k, d, true
		}
	}
	if !found {
		return key, value, false
	}
	entry := q.depMap[bestKey]
	delete(q.depMap, bestKey)
	return bestKey, entry.value, true
}

// Finish marks that node has produced edge; every queued node that was
// only waiting on that specific (node, edge) pair becomes a candidate.
func (q *DependencyQueue[N, E, V]) Finish(node N, edge E) {
	waiters, ok := q.reverseDepMap[node][edge]
	if !ok {
		return
	}
	key := depEdge[N, E]{node: node, edge: edge}
	for dep := range waiters {
		entry, ok := q.depMap[dep]
		if !ok {
			continue
		}
		delete(entry.deps, key)
	}
}

func (q *DependencyQueue[N, E, V]) IsEmpty() bool { return len(q.depMap) == 0 }
func (q *DependencyQueue[N, E, V]) Len() int      { return len(q.depMap) }
