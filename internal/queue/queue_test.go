package queue_test

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsbundle/tsb/internal/queue"
)

func TestQueueRunsAllTasks(t *testing.T) {
	q := queue.New(4)
	var count int32
	for i := 0; i < 50; i++ {
		q.Run("task", func() error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	}
	assert.NoError(t, q.OnceEnd())
	assert.Equal(t, int32(50), count)
}

func TestQueuePoisonsOnTaskError(t *testing.T) {
	q := queue.New(2)
	wantErr := errors.New("boom")
	q.Run("failing", func() error { return wantErr })
	err := q.OnceEnd()
	assert.ErrorIs(t, err, wantErr)
}

func TestQueueRecoversPanicAsPoison(t *testing.T) {
	q := queue.New(2)
	q.Run("panicky", func() error {
		panic("unexpected")
	})
	err := q.OnceEnd()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panicky")
}

func TestQueueRefUnrefDelaysOnceEnd(t *testing.T) {
	q := queue.New(2)
	q.Ref()

	done := make(chan struct{})
	go func() {
		q.OnceEnd()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("OnceEnd returned before Unref")
	default:
	}
	q.Unref()
	<-done
}

func TestDefaultConcurrencyFloorsAtEightAndCapsAtCPUSquared(t *testing.T) {
	cpus := runtime.NumCPU()
	want := 2 * cpus
	if want < 8 {
		want = 8
	}
	if want > cpus*cpus {
		want = cpus * cpus
	}
	assert.Equal(t, want, queue.DefaultConcurrency())
}
