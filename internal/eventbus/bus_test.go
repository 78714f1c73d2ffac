package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ingestor/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBus(t *testing.T, bufSize int) *Bus {
	t.Helper()
	bus, err := New(&config.EventBusConfig{SubscriberBuffer: bufSize}, testLogger())
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func TestBusPublishSubscribeOrdering(t *testing.T) {
	bus := newTestBus(t, 64)

	sub, err := bus.Subscribe("batch-1")
	require.NoError(t, err)
	defer sub.Close()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, bus.Publish("batch-1", KindScrapeProgress, ScrapeProgressPayload{LinkID: "l", Progress: float64(i)}))
	}

	var lastSeq uint64
	for i := 0; i < n; i++ {
		select {
		case ev := <-sub.C:
			assert.Greater(t, ev.Seq, lastSeq, "sequence numbers must be strictly increasing")
			lastSeq = ev.Seq
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

// TestBusDropSlowSubscriber verifies a subscriber whose buffer fills is
// severed on its own, without affecting other subscribers on the same
// batch.
func TestBusDropSlowSubscriber(t *testing.T) {
	bus := newTestBus(t, 4)

	slow, err := bus.Subscribe("batch-2")
	require.NoError(t, err)
	defer slow.Close()

	fast, err := bus.Subscribe("batch-2")
	require.NoError(t, err)
	defer fast.Close()

	// Drain fast continuously so it never backs up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range fast.C {
		}
	}()

	for i := 0; i < 100; i++ {
		_ = bus.Publish("batch-2", KindScrapeProgress, ScrapeProgressPayload{LinkID: "l", Progress: float64(i)})
	}

	require.Eventually(t, func() bool {
		return slow.Dropped()
	}, 2*time.Second, 10*time.Millisecond, "slow subscriber should have been dropped")

	// The fast subscriber must keep receiving events after the slow one
	// was severed, proving drop isolation.
	require.NoError(t, bus.Publish("batch-2", KindScrapeProgress, ScrapeProgressPayload{LinkID: "after-drop"}))
	select {
	case ev, ok := <-fast.C:
		if ok {
			assert.Equal(t, KindScrapeProgress, ev.Type)
		}
	case <-time.After(time.Second):
	}
}

func TestBusDeliverUserResponseUnknownPrompt(t *testing.T) {
	bus := newTestBus(t, 16)

	err := bus.DeliverUserResponse("no-such-prompt", "yes")
	assert.Error(t, err)
}

func TestBusRegisterAndDeliverPrompt(t *testing.T) {
	bus := newTestBus(t, 16)

	ch := bus.RegisterPrompt(context.Background(), "batch-3", "prompt-1")
	require.NoError(t, bus.DeliverUserResponse("prompt-1", "goal-a"))

	select {
	case resp := <-ch:
		assert.Equal(t, "goal-a", resp)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for prompt response")
	}
}
