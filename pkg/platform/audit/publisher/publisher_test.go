package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "referral/pkg/platform/audit"
	"referral/pkg/platform/audit/store/memory"
	"referral/pkg/platform/circuit"
)

func TestPublisherSyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		AccountID: "A",
		Action:    string(audit.EventProfileCreated),
	})
	require.NoError(t, err)

	events, err := store.ListByAccount(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventProfileCreated), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisherAsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			AccountID: "B",
			Action:    string(audit.EventReferralRedeemed),
			Subject:   "A",
		}))
	}
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close(), "close is idempotent")

	events, err := store.ListByAccount(context.Background(), "B")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

// blockingStore holds every Append until release is closed.
type blockingStore struct {
	release chan struct{}
	count   atomic.Int32
}

func (b *blockingStore) Append(ctx context.Context, _ audit.Event) error {
	<-b.release
	b.count.Add(1)
	return nil
}

func TestPublisherBufferFullDropsEvent(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	pub := NewPublisher(store, WithAsyncBuffer(1), WithMetrics(m))

	var wg sync.WaitGroup
	var dropped atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(pub.Emit(context.Background(), audit.Event{Action: string(audit.EventProfileCreated)}), ErrBufferFull) {
				dropped.Add(1)
			}
		}()
	}
	wg.Wait()
	close(store.release)
	require.NoError(t, pub.Close())

	// One event may be in flight and one buffered; the rest are dropped.
	assert.GreaterOrEqual(t, dropped.Load(), int32(8))
	assert.Equal(t, int32(10), dropped.Load()+store.count.Load())
	assert.Equal(t, float64(dropped.Load()), testutil.ToFloat64(m.BufferDropped))
}

func TestPublisherStampsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{AccountID: "A", Action: string(audit.EventProfileRenamed)}))
	after := time.Now()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{AccountID: "A", Action: string(audit.EventProfileRenamed), Timestamp: custom}))

	events, err := store.ListByAccount(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
	assert.Equal(t, custom, events[1].Timestamp)
}

type failingStore struct {
	calls atomic.Int32
}

func (f *failingStore) Append(context.Context, audit.Event) error {
	f.calls.Add(1)
	return errors.New("broker unreachable")
}

func TestPublisherOpensCircuitOnRepeatedFailure(t *testing.T) {
	store := &failingStore{}
	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	pub := NewPublisher(store,
		WithMetrics(m),
		WithBreaker(circuit.New("audit", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))),
	)

	ctx := context.Background()
	event := audit.Event{AccountID: "A", Action: string(audit.EventProfileCreated)}
	assert.Error(t, pub.Emit(ctx, event))
	assert.Error(t, pub.Emit(ctx, event))
	assert.ErrorIs(t, pub.Emit(ctx, event), ErrCircuitOpen)
	assert.ErrorIs(t, pub.Emit(ctx, event), ErrCircuitOpen)

	assert.Equal(t, int32(2), store.calls.Load(), "open circuit skips the sink")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState))
}

func TestPublisherAsyncRejectsCancelledContext(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Emit(ctx, audit.Event{Action: string(audit.EventProfileCreated)}), context.Canceled)
}

func TestPublisherEmitAfterClose(t *testing.T) {
	for name, opts := range map[string][]Option{
		"async": {WithAsyncBuffer(4)},
		"sync":  nil,
	} {
		t.Run(name, func(t *testing.T) {
			store := memory.NewInMemoryStore()
			pub := NewPublisher(store, opts...)
			require.NoError(t, pub.Close())

			assert.NotPanics(t, func() {
				err := pub.Emit(context.Background(), audit.Event{AccountID: "A", Action: string(audit.EventProfileCreated)})
				assert.ErrorIs(t, err, ErrClosed)
			})
			events, err := store.ListByAccount(context.Background(), "A")
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestPublisherCloseDuringEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1024))

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{AccountID: "C", Action: string(audit.EventProfileRenamed)})
			if err == nil {
				accepted.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrClosed)
		}()
	}
	require.NoError(t, pub.Close())
	wg.Wait()

	events, err := store.ListByAccount(context.Background(), "C")
	require.NoError(t, err)
	assert.Len(t, events, int(accepted.Load()), "every accepted event is delivered before Close returns")
}
