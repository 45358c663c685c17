package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	args   []int
	starts []time.Time
}

func (r *recorder) fn(delay time.Duration) func(int) {
	return func(n int) {
		r.mu.Lock()
		r.args = append(r.args, n)
		r.starts = append(r.starts, time.Now())
		r.mu.Unlock()
		time.Sleep(delay)
	}
}

func (r *recorder) got() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.args...)
}

func TestThrottlerLeadingAndTrailing(t *testing.T) {
	rec := &recorder{}
	th := New(50*time.Millisecond, rec.fn(0))

	for i := 1; i <= 5; i++ {
		th.Call(i)
	}
	th.Wait()

	assert.Equal(t, []int{1, 5}, rec.got(), "first call runs immediately and the last call wins the trailing edge")
}

func TestThrottlerSpacing(t *testing.T) {
	rec := &recorder{}
	interval := 40 * time.Millisecond
	th := New(interval, rec.fn(0))

	th.Call(1)
	th.Call(2)
	th.Wait()
	th.Call(3)
	th.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.starts, 3)
	for i := 1; i < len(rec.starts); i++ {
		assert.GreaterOrEqual(t, rec.starts[i].Sub(rec.starts[i-1]), interval-5*time.Millisecond)
	}
	assert.Equal(t, []int{1, 2, 3}, rec.args)
}

func TestThrottlerNoOverlap(t *testing.T) {
	var running, overlaps atomic.Int32
	th := New(time.Millisecond, func(int) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
	})

	for i := 0; i < 10; i++ {
		th.Call(i)
		time.Sleep(3 * time.Millisecond)
	}
	th.Wait()

	assert.Zero(t, overlaps.Load())
}

func TestThrottlerPreservesOrder(t *testing.T) {
	rec := &recorder{}
	th := New(5*time.Millisecond, rec.fn(2*time.Millisecond))

	for i := 0; i < 50; i++ {
		th.Call(i)
		if i%7 == 0 {
			time.Sleep(4 * time.Millisecond)
		}
	}
	th.Wait()

	got := rec.got()
	require.NotEmpty(t, got)
	assert.Equal(t, 49, got[len(got)-1], "final state is always delivered")
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}
}

func TestThrottlerStop(t *testing.T) {
	rec := &recorder{}
	th := New(50*time.Millisecond, rec.fn(0))

	th.Call(1)
	th.Call(2)
	th.Stop()
	th.Call(3)
	th.Wait()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, []int{1}, rec.got())
}

func TestNewDefaultInterval(t *testing.T) {
	th := New(0, func(int) {})
	assert.Equal(t, DefaultInterval, th.interval)
}

func TestGroupKeysAreIndependent(t *testing.T) {
	var mu sync.Mutex
	got := map[string][]int{}
	g := NewGroup(50*time.Millisecond, func(key string, n int) {
		mu.Lock()
		got[key] = append(got[key], n)
		mu.Unlock()
	})

	g.Call("change:a", 1)
	g.Call("change:b", 10)
	g.Call("change:a", 2)
	g.Call("change:a", 3)
	g.Wait()

	assert.Equal(t, 2, g.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 3}, got["change:a"])
	assert.Equal(t, []int{10}, got["change:b"])
}

func TestGroupStop(t *testing.T) {
	var calls atomic.Int32
	g := NewGroup(50*time.Millisecond, func(string, int) { calls.Add(1) })

	g.Call("k", 1)
	g.Call("k", 2)
	g.Stop()
	time.Sleep(80 * time.Millisecond)

	assert.LessOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 0, g.Len())
}

func TestGroupStopThenWait(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{})
	g := NewGroup(10*time.Millisecond, func(string, int) {
		close(running)
		<-release
	})

	g.Call("k", 1)
	<-running
	g.Stop()

	waited := make(chan struct{})
	go func() {
		g.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a run was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the run finished")
	}
	assert.Equal(t, 0, g.Len())
}

func TestGroupCallAfterStop(t *testing.T) {
	var calls atomic.Int32
	g := NewGroup(10*time.Millisecond, func(string, int) { calls.Add(1) })

	g.Call("k", 1)
	g.Wait()
	g.Stop()
	g.Wait()

	g.Call("k", 2)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.Len())
}
