package sched

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/forgelang/forge/internal/unitgraph"
)

func TestSchedulerRespectsOrderAndConcurrency(t *testing.T) {
	var mu sync.Mutex
	var order []string

	work := func(ctx context.Context, u unitgraph.Unit, emit func(Message)) error {
		mu.Lock()
		order = append(order, u.Target.Name)
		mu.Unlock()
		emit(RmetaProducedMessage{})
		return nil
	}

	s := New(2, work, nil)
	s.AddUnit("leaf", unitgraph.Unit{Target: unitgraph.TargetDescriptor{Name: "leaf"}}, nil, nil)
	s.AddUnit("mid", unitgraph.Unit{Target: unitgraph.TargetDescriptor{Name: "mid"}}, nil,
		[]UnitDep{{UnitKey: "leaf", Artifact: ArtifactMetadata}})
	s.AddUnit("top", unitgraph.Unit{Target: unitgraph.TargetDescriptor{Name: "top"}}, nil,
		[]UnitDep{{UnitKey: "mid", Artifact: ArtifactAll}})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(order) != 3 || order[0] != "leaf" || order[1] != "mid" || order[2] != "top" {
		t.Fatalf("unexpected build order: %v", order)
	}
}

func TestSchedulerPropagatesError(t *testing.T) {
	work := func(ctx context.Context, u unitgraph.Unit, emit func(Message)) error {
		if u.Target.Name == "broken" {
			return fmt.Errorf("boom")
		}
		return nil
	}
	s := New(4, work, nil)
	s.AddUnit("broken", unitgraph.Unit{Target: unitgraph.TargetDescriptor{Name: "broken"}}, nil, nil)

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected Run to return the job's error")
	}
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	work := func(ctx context.Context, u unitgraph.Unit, emit func(Message)) error {
		panic("job exploded")
	}
	s := New(1, work, nil)
	s.AddUnit("u1", unitgraph.Unit{Target: unitgraph.TargetDescriptor{Name: "u1"}}, nil, nil)

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to surface an error after a worker panic, not hang or succeed")
	}
}

func TestEmptyQueueFinishesImmediately(t *testing.T) {
	s := New(4, func(ctx context.Context, u unitgraph.Unit, emit func(Message)) error {
		t.Fatal("work should never be called for an empty queue")
		return nil
	}, nil)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run on empty queue: %v", err)
	}
}
