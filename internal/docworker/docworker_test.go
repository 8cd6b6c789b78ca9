package docworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/model"
)

func TestSupersededAutoRequestIsDropped(t *testing.T) {
	w := New(nil)
	var mu sync.Mutex
	var ran []string

	w.mu.Lock()
	w.queue = []model.Request{
		{Name: "update", File: "a.cj", Tag: model.UpdateAuto, Thunk: func() error {
			mu.Lock()
			ran = append(ran, "first")
			mu.Unlock()
			return nil
		}},
		{Name: "update2", File: "a.cj", Tag: model.UpdateAuto, Thunk: func() error {
			mu.Lock()
			ran = append(ran, "second")
			mu.Unlock()
			return nil
		}},
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	w.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second"}, ran, "an earlier AUTO request for the same file must be dropped, not run")
}

func TestYesTaggedRequestIsNeverSuperseded(t *testing.T) {
	w := New(nil)
	var mu sync.Mutex
	var ran []string

	w.mu.Lock()
	w.queue = []model.Request{
		{Name: "save", File: "a.cj", Tag: model.UpdateYes, Thunk: func() error {
			mu.Lock()
			ran = append(ran, "save")
			mu.Unlock()
			return nil
		}},
		{Name: "update", File: "a.cj", Tag: model.UpdateAuto, Thunk: func() error {
			mu.Lock()
			ran = append(ran, "update")
			mu.Unlock()
			return nil
		}},
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	w.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"save", "update"}, ran)
}

func TestEnqueueDedupsSameNameAndFile(t *testing.T) {
	w := New(nil)
	w.Enqueue(model.Request{Name: "update", File: "a.cj", Tag: model.UpdateAuto})
	w.Enqueue(model.Request{Name: "update", File: "a.cj", Tag: model.UpdateAuto})

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.queue, 1)
}

func TestRunCompletionCancelsPreviousRun(t *testing.T) {
	w := New(nil)

	firstCancelled := make(chan struct{})
	w.RunCompletion(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		close(firstCancelled)
		return ctx.Err()
	})

	time.Sleep(10 * time.Millisecond)
	w.RunCompletion(context.Background(), func(ctx context.Context) error {
		return nil
	})

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("starting a new completion must cancel the previous one")
	}
}
