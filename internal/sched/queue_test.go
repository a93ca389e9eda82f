package sched

import "testing"

// TestDeepFirst ports the original implementation's deep_first test
// case directly: node 5 depends on 4 and 3, node 4 depends on 2 and 3,
// node 2 depends on 1, node 1 and 3 have no deps. Dequeue order must
// prefer the greatest topological depth among ready nodes.
func TestDeepFirst(t *testing.T) {
	q := NewDependencyQueue[int, struct{}, struct{}]()

	q.Queue(1, struct{}{}, nil)
	q.Queue(2, struct{}{}, []depEdge[int, struct{}]{DependsOn[int, struct{}](1, struct{}{})})
	q.Queue(3, struct{}{}, nil)
	q.Queue(4, struct{}{}, []depEdge[int, struct{}]{
		DependsOn[int, struct{}](2, struct{}{}),
		DependsOn[int, struct{}](3, struct{}{}),
	})
	q.Queue(5, struct{}{}, []depEdge[int, struct{}]{
		DependsOn[int, struct{}](4, struct{}{}),
		DependsOn[int, struct{}](3, struct{}{}),
	})
	q.QueueFinished()

	expectDequeue := func(want int, wantOK bool) {
		t.Helper()
		k, _, ok := q.Dequeue()
		if ok != wantOK {
			t.Fatalf("Dequeue() ok = %v, want %v", ok, wantOK)
		}
		if ok && k != want {
			t.Fatalf("Dequeue() = %d, want %d", k, want)
		}
	}

	expectDequeue(1, true)
	expectDequeue(3, true)
	expectDequeue(0, false)

	q.Finish(3, struct{}{})
	expectDequeue(0, false)

	q.Finish(1, struct{}{})
	expectDequeue(2, true)
	expectDequeue(0, false)

	q.Finish(2, struct{}{})
	expectDequeue(4, true)
	expectDequeue(0, false)

	q.Finish(4, struct{}{})
	expectDequeue(5, true)

	if !q.IsEmpty() {
		t.Fatalf("expected queue to be empty, len = %d", q.Len())
	}
}

func TestCycleDetectionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected QueueFinished to panic on a cycle")
		}
	}()
	q := NewDependencyQueue[int, struct{}, struct{}]()
	q.Queue(1, struct{}{}, []depEdge[int, struct{}]{DependsOn[int, struct{}](2, struct{}{})})
	q.Queue(2, struct{}{}, []depEdge[int, struct{}]{DependsOn[int, struct{}](1, struct{}{})})
	q.QueueFinished()
}
