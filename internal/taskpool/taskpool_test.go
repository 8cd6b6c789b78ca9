package taskpool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsOnlyAfterPrerequisitesComplete(t *testing.T) {
	p := New(Size(true), nil)
	defer p.Close()

	var mu sync.Mutex
	var order []string

	p.AddTask(2, []TaskID{1}, func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		return nil
	})
	p.AddTask(1, nil, func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
		return nil
	})

	p.WaitUntilAllComplete()

	require.Equal(t, []string{"a", "b"}, order)
}

func TestFailedTaskStillUnblocksDependents(t *testing.T) {
	p := New(Size(true), nil)
	defer p.Close()

	ran := make(chan struct{}, 1)
	p.AddTask(1, nil, func(ctx context.Context) error {
		return errors.New("boom")
	})
	p.AddTask(2, []TaskID{1}, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})

	p.WaitUntilAllComplete()

	select {
	case <-ran:
	default:
		t.Fatal("dependent of a failed task never ran")
	}

	done, err := p.TaskCompleted(1)
	assert.True(t, done)
	assert.EqualError(t, err, "boom")
}

func TestReAddingPendingTaskCoalesces(t *testing.T) {
	p := New(Size(true), nil)
	defer p.Close()

	calls := 0
	var mu sync.Mutex
	blocker := make(chan struct{})

	// 2 depends on 1, which never completes until we close blocker.
	p.AddTask(1, nil, func(ctx context.Context) error {
		<-blocker
		return nil
	})
	p.AddTask(2, []TaskID{1}, func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	// Re-add id 2 with a different body while still pending on id 1.
	p.AddTask(2, []TaskID{1}, func(ctx context.Context) error {
		mu.Lock()
		calls += 100
		mu.Unlock()
		return nil
	})

	close(blocker)
	p.WaitUntilAllComplete()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, calls, "second AddTask should have replaced the first thunk")
}

func TestPanicInThunkStillCompletesTask(t *testing.T) {
	p := New(Size(true), nil)
	defer p.Close()

	p.AddTask(1, nil, func(ctx context.Context) error {
		panic("unexpected")
	})
	p.WaitUntilAllComplete()

	done, err := p.TaskCompleted(1)
	assert.True(t, done)
	assert.Error(t, err)
}

func TestDiamondDependencyRunsEachNodeOnce(t *testing.T) {
	p := New(Size(true), nil)
	defer p.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	record := func(name string) Thunk {
		return func(ctx context.Context) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		}
	}

	p.AddTask(1, nil, record("a"))
	p.AddTask(2, []TaskID{1}, record("b"))
	p.AddTask(3, []TaskID{1}, record("c"))
	p.AddTask(4, []TaskID{2, 3}, record("d"))

	p.WaitUntilAllComplete()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, counts)
}
