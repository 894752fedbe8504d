package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(studentID string) Event {
	return Event{
		StudentID:   studentID,
		StudentName: "Student " + studentID,
		Status:      "PRESENT",
		Timestamp:   time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC),
	}
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryPublishDelivers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, "class-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Publish(ctx, "class-1", testEvent("alice")))
	assert.Equal(t, "alice", receive(t, sub).StudentID)
}

func TestMemoryNoReplayForLateSubscribers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, "class-1", testEvent("alice")))

	sub, err := m.Subscribe(ctx, "class-1")
	require.NoError(t, err)
	defer sub.Close()
	assertNoEvent(t, sub)
}

func TestMemoryChannelsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub1, err := m.Subscribe(ctx, "class-1")
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := m.Subscribe(ctx, "class-2")
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, m.Publish(ctx, "class-1", testEvent("alice")))
	assert.Equal(t, "alice", receive(t, sub1).StudentID)
	assertNoEvent(t, sub2)
}

func TestMemoryPublishOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, "class-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Publish(ctx, "class-1", testEvent("a")))
	require.NoError(t, m.Publish(ctx, "class-1", testEvent("b")))
	require.NoError(t, m.Publish(ctx, "class-1", testEvent("c")))

	assert.Equal(t, "a", receive(t, sub).StudentID)
	assert.Equal(t, "b", receive(t, sub).StudentID)
	assert.Equal(t, "c", receive(t, sub).StudentID)
}

func TestMemoryCloseStopsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, "class-1")
	require.NoError(t, err)
	sub.Close()
	sub.Close() // idempotent

	// A publish after close reaches nobody and does not error.
	require.NoError(t, m.Publish(ctx, "class-1", testEvent("alice")))
	_, ok := <-sub.C
	assert.False(t, ok, "channel must be closed")
}

func TestMemorySlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, "class-1")
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = m.Publish(ctx, "class-1", testEvent("flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
