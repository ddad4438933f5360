package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)
	done := make(chan struct{})

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		if len(seen) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs not processed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestQueueRetriesWithBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := make([]int, 0)
	done := make(chan struct{})

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()
		if job.Attempt < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryBaseDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestQueueStopsRetryingAfterBudget(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	q := NewQueue("test", func(_ context.Context, _ Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("permanent")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryBaseDelay: time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "j"}))

	// initial attempt + 2 retries
	time.Sleep(200 * time.Millisecond)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(_ context.Context, _ Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "j"}))
}

func TestBackoffDoubles(t *testing.T) {
	q := NewQueue("test", nil, QueueConfig{RetryBaseDelay: time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
}
