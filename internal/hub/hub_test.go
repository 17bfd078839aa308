package hub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/rota/internal/store"
	"github.com/dyluth/rota/pkg/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory store with failure injection.
type memStore struct {
	mu       sync.Mutex
	data     booking.Map
	saves    int
	loads    int
	saveErr  error
	loadErr  error
	saveGate chan struct{} // when set, Save waits for a receive before returning
	loadGate chan struct{} // when set, Load reads the data and then waits before returning it
}

func (s *memStore) Load(ctx context.Context) (booking.Map, error) {
	s.mu.Lock()
	s.loads++
	gate := s.loadGate
	err := s.loadErr
	data := s.data.Clone()
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *memStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *memStore) Save(ctx context.Context, m booking.Map) error {
	s.mu.Lock()
	gate := s.saveGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.data = m.Clone()
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *memStore) persisted() booking.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

func receive(t *testing.T, sub *Subscription) booking.Map {
	t.Helper()
	select {
	case m, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return m
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
		return nil
	}
}

func assertNoBroadcast(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Events():
		t.Fatalf("unexpected broadcast: %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshot(t *testing.T) {
	t.Run("empty store yields empty map", func(t *testing.T) {
		h := New(&memStore{})

		m, err := h.Snapshot(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Empty(t, m)
	})

	t.Run("loads lazily and only once", func(t *testing.T) {
		s := &memStore{data: booking.Map{"2024-01-01": "Alice"}}
		h := New(s)
		assert.Equal(t, 0, s.loads)

		for i := 0; i < 3; i++ {
			m, err := h.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, booking.Map{"2024-01-01": "Alice"}, m)
		}
		assert.Equal(t, 1, s.loads)
	})

	t.Run("failed load is not cached", func(t *testing.T) {
		s := &memStore{loadErr: fmt.Errorf("%w: connection refused", store.ErrUnavailable)}
		h := New(s)

		_, err := h.Snapshot(context.Background())
		require.Error(t, err)
		assert.True(t, store.IsUnavailable(err))

		s.mu.Lock()
		s.loadErr = nil
		s.data = booking.Map{"2024-01-01": "Alice"}
		s.mu.Unlock()

		m, err := h.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, booking.Map{"2024-01-01": "Alice"}, m)
	})

	t.Run("returned map is a copy", func(t *testing.T) {
		h := New(&memStore{data: booking.Map{"2024-01-01": "Alice"}})

		m, err := h.Snapshot(context.Background())
		require.NoError(t, err)
		m["2024-01-01"] = "Mallory"

		again, err := h.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Alice", again["2024-01-01"])
	})
}

func TestApplyUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("persists, caches and broadcasts to every observer", func(t *testing.T) {
		s := &memStore{}
		h := New(s)

		subA, snapA, err := h.Join(ctx)
		require.NoError(t, err)
		defer subA.Close()
		subB, snapB, err := h.Join(ctx)
		require.NoError(t, err)
		defer subB.Close()
		assert.Empty(t, snapA)
		assert.Empty(t, snapB)

		update := booking.Map{"2024-01-01": "Alice"}
		require.NoError(t, h.ApplyUpdate(ctx, update))

		assert.Equal(t, update, receive(t, subA))
		assert.Equal(t, update, receive(t, subB))
		assert.Equal(t, update, s.persisted())

		snap, err := h.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, update, snap)
	})

	t.Run("replaces rather than merges", func(t *testing.T) {
		h := New(&memStore{data: booking.Map{"2024-01-01": "Alice", "2024-01-02": "Bob"}})

		require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-03": "Carol"}))

		snap, err := h.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, booking.Map{"2024-01-03": "Carol"}, snap)
	})

	t.Run("failed save neither caches nor broadcasts", func(t *testing.T) {
		s := &memStore{data: booking.Map{"2024-01-01": "Alice"}}
		h := New(s)

		sub, _, err := h.Join(ctx)
		require.NoError(t, err)
		defer sub.Close()

		s.setSaveErr(fmt.Errorf("%w: disk full", store.ErrUnavailable))
		err = h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Bob"})
		require.Error(t, err)
		assert.True(t, store.IsUnavailable(err))
		assert.Contains(t, err.Error(), "failed to persist bookings")

		assertNoBroadcast(t, sub)
		snap, err := h.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, booking.Map{"2024-01-01": "Alice"}, snap)

		// the caller may retry once the store recovers
		s.setSaveErr(nil)
		require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Bob"}))
		assert.Equal(t, booking.Map{"2024-01-01": "Bob"}, receive(t, sub))
	})

	t.Run("rejects malformed dates without saving", func(t *testing.T) {
		s := &memStore{}
		h := New(s)

		sub, _, err := h.Join(ctx)
		require.NoError(t, err)
		defer sub.Close()

		err = h.ApplyUpdate(ctx, booking.Map{"next tuesday": "Alice"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidUpdate))
		assert.Equal(t, 0, s.saves)
		assertNoBroadcast(t, sub)
	})

	t.Run("repeating an update is idempotent", func(t *testing.T) {
		s := &memStore{}
		h := New(s)

		sub, _, err := h.Join(ctx)
		require.NoError(t, err)
		defer sub.Close()

		update := booking.Map{"2024-01-01": "Alice"}
		require.NoError(t, h.ApplyUpdate(ctx, update))
		require.NoError(t, h.ApplyUpdate(ctx, update))

		assert.Equal(t, update, receive(t, sub))
		assert.Equal(t, update, receive(t, sub))
		assert.Equal(t, update, s.persisted())
		assert.Equal(t, 2, s.saves)
	})

	t.Run("caller mutating its map after update does not leak", func(t *testing.T) {
		h := New(&memStore{})
		update := booking.Map{"2024-01-01": "Alice"}
		require.NoError(t, h.ApplyUpdate(ctx, update))
		update["2024-01-01"] = "Mallory"

		snap, err := h.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Alice", snap["2024-01-01"])
	})

	t.Run("empty update clears the board", func(t *testing.T) {
		h := New(&memStore{data: booking.Map{"2024-01-01": "Alice"}})
		require.NoError(t, h.ApplyUpdate(ctx, nil))

		snap, err := h.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap)
	})
}

func TestSequentialUpdatesConvergeOnLast(t *testing.T) {
	ctx := context.Background()
	s := &memStore{}
	h := New(s, WithBufferSize(64))

	sub, _, err := h.Join(ctx)
	require.NoError(t, err)
	defer sub.Close()

	var last booking.Map
	for i := 1; i <= 20; i++ {
		last = booking.Map{fmt.Sprintf("2024-01-%02d", i): fmt.Sprintf("person-%d", i)}
		require.NoError(t, h.ApplyUpdate(ctx, last))
	}

	snap, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, last, snap)
	assert.Equal(t, last, s.persisted())

	for i := 1; i <= 20; i++ {
		m := receive(t, sub)
		assert.Equal(t, fmt.Sprintf("person-%d", i), m[fmt.Sprintf("2024-01-%02d", i)])
	}
}

func TestConcurrentUpdatesBroadcastInSaveOrder(t *testing.T) {
	ctx := context.Background()
	s := &memStore{}
	h := New(s, WithBufferSize(128))

	sub, _, err := h.Join(ctx)
	require.NoError(t, err)
	defer sub.Close()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": fmt.Sprintf("writer-%d", i)}))
		}(i)
	}
	wg.Wait()

	var lastBroadcast booking.Map
	for i := 0; i < writers; i++ {
		lastBroadcast = receive(t, sub)
	}

	snap, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.persisted(), snap, "cache must equal the last completed save")
	assert.Equal(t, snap, lastBroadcast, "last broadcast must equal the last completed save")
}

func TestSlowSaveDoesNotBlockReaders(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	s := &memStore{data: booking.Map{"2024-01-01": "Alice"}}
	h := New(s)

	_, err := h.Snapshot(ctx)
	require.NoError(t, err)

	s.mu.Lock()
	s.saveGate = gate
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Bob"})
	}()

	// the pending save leaves readers on the previous state
	snap, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", snap["2024-01-01"])

	sub, joinSnap, err := h.Join(ctx)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, "Alice", joinSnap["2024-01-01"])

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, booking.Map{"2024-01-01": "Bob"}, receive(t, sub))
}

func TestSlowFirstLoadDoesNotBlockHub(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	s := &memStore{data: booking.Map{"2024-01-01": "Alice"}, loadGate: gate}
	h := New(s)

	snapDone := make(chan booking.Map, 1)
	go func() {
		snap, err := h.Snapshot(ctx)
		assert.NoError(t, err)
		snapDone <- snap
	}()
	require.Eventually(t, func() bool { return s.loadCount() == 1 }, time.Second, 5*time.Millisecond)

	observers := make(chan int, 1)
	go func() { observers <- h.Observers() }()
	select {
	case n := <-observers:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("Observers blocked behind a pending load")
	}

	// an update applied while the load is pending wins over the stale load
	require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Bob"}))

	close(gate)
	select {
	case snap := <-snapDone:
		assert.Equal(t, booking.Map{"2024-01-01": "Bob"}, snap)
	case <-time.After(time.Second):
		t.Fatal("Snapshot did not return after load completed")
	}
	assert.Equal(t, 1, s.loadCount())
}

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("close removes observer and is idempotent", func(t *testing.T) {
		h := New(&memStore{})
		sub, _, err := h.Join(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, h.Observers())

		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
		assert.Equal(t, 0, h.Observers())

		_, ok := <-sub.Events()
		assert.False(t, ok)

		require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Alice"}))
	})

	t.Run("slow observer is evicted without blocking others", func(t *testing.T) {
		h := New(&memStore{}, WithBufferSize(1))

		slow, _, err := h.Join(ctx)
		require.NoError(t, err)
		defer slow.Close()
		fast, _, err := h.Join(ctx)
		require.NoError(t, err)
		defer fast.Close()

		require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Alice"}))
		receive(t, fast)
		require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Bob"}))
		receive(t, fast)

		assert.Equal(t, 1, h.Observers())

		first, ok := <-slow.Events()
		require.True(t, ok)
		assert.Equal(t, "Alice", first["2024-01-01"])
		_, ok = <-slow.Events()
		assert.False(t, ok, "evicted observer channel should be closed")
	})

	t.Run("hub close ends subscriptions and rejects joins", func(t *testing.T) {
		h := New(&memStore{})
		sub, _, err := h.Join(ctx)
		require.NoError(t, err)

		h.Close()
		_, ok := <-sub.Events()
		assert.False(t, ok)
		assert.NoError(t, sub.Close())

		_, _, err = h.Join(ctx)
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("join surfaces load failure", func(t *testing.T) {
		h := New(&memStore{loadErr: fmt.Errorf("%w: bad row", store.ErrMalformed)})

		sub, snap, err := h.Join(ctx)
		assert.Nil(t, sub)
		assert.Nil(t, snap)
		assert.True(t, store.IsMalformed(err))
		assert.Equal(t, 0, h.Observers())
	})
}

func TestHubWithFileStore(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "booking_data.csv"))
	require.NoError(t, err)

	h := New(fs)
	snap, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)

	require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Alice"}))

	// a fresh hub over the same file sees the persisted state
	reloaded, err := New(fs).Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, booking.Map{"2024-01-01": "Alice"}, reloaded)
}

func TestHubWithFileStore_UnrepresentableUpdateIsNotBroadcast(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "booking_data.csv"))
	require.NoError(t, err)

	h := New(fs)
	require.NoError(t, h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "Alice"}))

	sub, _, err := h.Join(ctx)
	require.NoError(t, err)
	defer sub.Close()

	err = h.ApplyUpdate(ctx, booking.Map{"2024-01-01": "crlf\r\nend"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnrepresentable)

	select {
	case m := <-sub.Events():
		t.Fatalf("unexpected broadcast: %v", m)
	case <-time.After(50 * time.Millisecond):
	}

	snap, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, booking.Map{"2024-01-01": "Alice"}, snap)

	reloaded, err := New(fs).Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, reloaded)
}
