package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunQueueCoalescesWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var mu sync.Mutex
	var active, maxActive int

	q := NewRunQueue(func(ctx context.Context, job Job) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		started <- struct{}{}
		<-release
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}, nil)

	require.True(t, q.TryEnqueue(Job{Reason: "tick"}))
	<-started // worker busy with the first job

	assert.True(t, q.TryEnqueue(Job{Reason: "fsnotify"}))
	assert.False(t, q.TryEnqueue(Job{Reason: "fsnotify"}))
	assert.False(t, q.TryEnqueue(Job{Reason: "tick"}))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	runs, coalesced := q.Stats()
	assert.Equal(t, 2, runs)
	assert.Equal(t, 2, coalesced)
	assert.Equal(t, 1, maxActive)
}

func TestRunQueueRejectsAfterShutdown(t *testing.T) {
	q := NewRunQueue(func(context.Context, Job) error { return nil }, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	assert.False(t, q.TryEnqueue(Job{Reason: "tick"}))
	assert.NoError(t, q.Enqueue(context.Background(), Job{Reason: "tick"}))
}

func TestRunQueueAppliesTimeout(t *testing.T) {
	got := make(chan error, 1)
	q := NewRunQueue(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}, nil, WithRunTimeout(10*time.Millisecond))
	defer q.Shutdown(context.Background())

	require.True(t, q.TryEnqueue(Job{Reason: "startup"}))
	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("run was not cancelled")
	}
}
