package nodaldb

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageVersionInitialState(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	assert.False(t, v.IsLocked())
	assert.Zero(t, v.InsertionCounter())
	assert.Zero(t, v.SplitCounter())
	assert.Zero(t, v.KeyCount())
	assert.True(t, v.IsBorder())
	assert.False(t, v.IsHighFenceSupremum())
	assert.Zero(t, v.Layer())
}

func TestPageVersionFieldRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		locked, hfc, border, sup bool
		layer                    uint8
	}{
		{false, false, false, false, 0},
		{true, true, true, true, 255},
		{false, true, false, true, 7},
		{true, false, true, false, 128},
	} {
		v := NewInitializedPageVersion(tc.locked, tc.hfc, tc.border, tc.sup, tc.layer)
		assert.Equal(t, tc.locked, v.IsLocked())
		assert.Equal(t, tc.hfc, v.HasFosterChild())
		assert.Equal(t, tc.border, v.IsBorder())
		assert.Equal(t, tc.sup, v.IsHighFenceSupremum())
		assert.Equal(t, tc.layer, v.Layer())
	}
}

// S2 from spec: fresh border page, lock+insert+unlock bumps insertion
// counter and key count, never split counter.
func TestPageVersionInsertCycle(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)

	v.Lock()
	v.SetInsertingAndIncrementKeyCount()
	v.Unlock()

	assert.False(t, v.IsLocked())
	assert.False(t, v.IsInserting())
	assert.EqualValues(t, 1, v.InsertionCounter())
	assert.Zero(t, v.SplitCounter())
	assert.EqualValues(t, 1, v.KeyCount())
}

// S3: a subsequent splitting cycle bumps the split counter only.
func TestPageVersionSplitCycle(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	v.Lock()
	v.SetInsertingAndIncrementKeyCount()
	v.Unlock()

	v.Lock()
	v.SetSplitting()
	v.Unlock()

	assert.False(t, v.IsLocked())
	assert.False(t, v.IsSplitting())
	assert.EqualValues(t, 1, v.InsertionCounter())
	assert.EqualValues(t, 1, v.SplitCounter())
	assert.EqualValues(t, 1, v.KeyCount())
}

// T3: across an arbitrary sequence of cycles, counters never decrease
// and each cycle bumps exactly the bits that were set.
func TestPageVersionCountersMonotone(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	var wantIC, wantSC uint32

	cycles := []bool{true, false, true, true, false, false, true}
	for _, inserting := range cycles {
		v.Lock()
		if inserting {
			v.SetInserting()
			wantIC++
		} else {
			v.SetSplitting()
			wantSC++
		}
		v.Unlock()
		assert.Equal(t, wantIC, v.InsertionCounter())
		assert.Equal(t, wantSC, v.SplitCounter())
	}
}

// T4: concurrent Lock callers serialize -- exactly one observer at a
// time believes it holds the lock.
func TestPageVersionLockExclusivity(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	const goroutines = 32
	const itersPerGoroutine = 200

	var active int32
	var maxActive int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < itersPerGoroutine; j++ {
				v.Lock()
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				v.IncrementKeyCount()

				mu.Lock()
				active--
				mu.Unlock()
				v.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxActive)
	assert.EqualValues(t, goroutines*itersPerGoroutine, v.KeyCount())
}

// S4: a reader's StableVersion call does not return while a writer has
// inserting set, and observes the post-unlock counter bump.
func TestPageVersionStableVersionBlocksDuringInsert(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	v.Lock()
	v.SetInserting()

	done := make(chan PageVersion, 1)
	go func() {
		done <- v.StableVersion()
	}()

	// Give the reader a chance to start spinning before we unlock.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("StableVersion returned while inserting bit was still set")
	default:
	}

	v.Unlock()

	select {
	case stable := <-done:
		assert.False(t, stable.IsInserting())
		assert.EqualValues(t, 1, stable.InsertionCounter())
	case <-time.After(time.Second):
		t.Fatal("StableVersion never returned after unlock")
	}
}

// S5: try_lock timeout semantics.
func TestPageVersionTryLockTimeout(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	v.Lock()

	assert.False(t, v.TryLock(TimeoutConditional))

	start := time.Now()
	ok := v.TryLock(TimeoutMicros(5000))
	elapsed := time.Since(start)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 3*time.Millisecond)

	unlocked := make(chan struct{})
	go func() {
		time.Sleep(15 * time.Millisecond)
		v.Unlock()
		close(unlocked)
	}()

	acquired := make(chan bool, 1)
	go func() {
		acquired <- v.TryLock(TimeoutInfinite)
	}()

	select {
	case ok := <-acquired:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("infinite TryLock never acquired the lock")
	}
	<-unlocked
	v.Unlock()
}

// T5: if a reader's two stable snapshots agree on both counters and
// show no in-progress modification, no writer completed in between.
func TestSameCountersSoundness(t *testing.T) {
	v := NewInitializedPageVersion(false, false, true, false, 0)
	v1 := v.StableVersion()

	v.Lock()
	v.SetInsertingAndIncrementKeyCount()
	v.Unlock()

	v2 := v.StableVersion()
	assert.False(t, SameCounters(v1, v2), "counters must differ after a completed writer")

	v3 := v.StableVersion()
	assert.True(t, SameCounters(v2, v3), "two stable reads with no writer in between must agree")
}
