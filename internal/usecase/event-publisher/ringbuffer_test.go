package eventpublisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
)

func TestRingTryPushRejectsWhenFull(t *testing.T) {
	r := NewRing(2)
	assert.True(t, r.TryPush(&eventv1.Event{SequenceNum: 1}))
	assert.True(t, r.TryPush(&eventv1.Event{SequenceNum: 2}))
	assert.False(t, r.TryPush(&eventv1.Event{SequenceNum: 3}))
}

func TestRingPopOrdersFIFO(t *testing.T) {
	r := NewRing(4)
	require.True(t, r.TryPush(&eventv1.Event{SequenceNum: 1}))
	require.True(t, r.TryPush(&eventv1.Event{SequenceNum: 2}))
	require.True(t, r.TryPush(&eventv1.Event{SequenceNum: 3}))

	e1, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), e1.SequenceNum)

	e2, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(2), e2.SequenceNum)
}

func TestRingPushBlocksUntilSpaceFreed(t *testing.T) {
	r := NewRing(1)
	require.True(t, r.TryPush(&eventv1.Event{SequenceNum: 1}))

	pushed := make(chan error, 1)
	go func() {
		pushed <- r.Push(context.Background(), &eventv1.Event{SequenceNum: 2})
	}()

	select {
	case <-pushed:
		t.Fatal("Push returned before the ring had room")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := r.Pop()
	require.True(t, ok)

	select {
	case err := <-pushed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Push never unblocked after Pop freed a slot")
	}
}

func TestRingPushReturnsErrorWhenContextCancelled(t *testing.T) {
	r := NewRing(1)
	require.True(t, r.TryPush(&eventv1.Event{SequenceNum: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Push(ctx, &eventv1.Event{SequenceNum: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRingCloseUnblocksPendingPop(t *testing.T) {
	r := NewRing(1)

	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok = r.Pop()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked after Close")
	}
}

func TestRingCloseUnblocksPendingPush(t *testing.T) {
	r := NewRing(1)
	require.True(t, r.TryPush(&eventv1.Event{SequenceNum: 1}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Push(context.Background(), &eventv1.Event{SequenceNum: 2})
	}()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Push never unblocked after Close")
	}
}

func TestRingConcurrentProducerConsumerPreservesCount(t *testing.T) {
	r := NewRing(8)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, r.Push(context.Background(), &eventv1.Event{SequenceNum: int64(i)}))
		}
	}()

	received := 0
	for received < n {
		if _, ok := r.Pop(); ok {
			received++
		}
	}
	wg.Wait()
	assert.Equal(t, n, received)
}
