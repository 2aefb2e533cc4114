package roundtimer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_Fires(t *testing.T) {
	timer := New()
	got := make(chan int, 1)

	timer.Start(10*time.Millisecond, 3, func(round int) { got <- round })

	select {
	case round := <-got:
		assert.Equal(t, 3, round)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, timer.Stop(), "stop after firing reports nothing cancelled")
}

func TestTimer_StopPreventsFire(t *testing.T) {
	timer := New()
	var calls atomic.Int32

	timer.Start(20*time.Millisecond, 1, func(int) { calls.Add(1) })
	require.True(t, timer.Stop())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, timer.Stop())
}

func TestTimer_RestartReplacesDeadline(t *testing.T) {
	timer := New()
	got := make(chan int, 2)

	timer.Start(20*time.Millisecond, 1, func(round int) { got <- round })
	timer.Start(10*time.Millisecond, 2, func(round int) { got <- round })

	select {
	case round := <-got:
		assert.Equal(t, 2, round)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, got, 0, "the replaced deadline never fires")
}

func TestTimer_Deadline(t *testing.T) {
	timer := New()
	_, _, armed := timer.Deadline()
	assert.False(t, armed)

	before := time.Now()
	timer.Start(time.Minute, 4, func(int) {})
	ends, round, ok := timer.Deadline()
	require.True(t, ok)
	assert.Equal(t, 4, round)
	assert.WithinDuration(t, before.Add(time.Minute), ends, time.Second)

	timer.Stop()
	_, _, ok = timer.Deadline()
	assert.False(t, ok)
}

func TestTimer_StopRacesWithFire(t *testing.T) {
	for i := 0; i < 50; i++ {
		timer := New()
		var calls atomic.Int32
		timer.Start(time.Millisecond, 1, func(int) { calls.Add(1) })
		time.Sleep(time.Millisecond)
		stopped := timer.Stop()
		time.Sleep(5 * time.Millisecond)

		if stopped {
			assert.Equal(t, int32(0), calls.Load())
		} else {
			assert.Equal(t, int32(1), calls.Load())
		}
	}
}
