package eventloop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoop_QuiescesWithNoRefs(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Run())
	require.Equal(t, int64(0), l.RefCount())
}

func TestLoop_NextTickFIFO(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		l.NextTick(func() { order = append(order, i) })
	}
	require.NoError(t, l.Run())
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoop_NextTickBeforeSetTimeoutZero(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []string
	l.NextTick(func() { order = append(order, "tick") })
	l.SetTimeout(0, func() { order = append(order, "timeout") })

	require.NoError(t, l.Run())
	require.Equal(t, []string{"tick", "timeout"}, order)
}

func TestLoop_NextTickBeforeSetTimeoutZero_ReverseEnqueue(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []string
	l.SetTimeout(0, func() { order = append(order, "timeout") })
	l.NextTick(func() { order = append(order, "tick") })

	require.NoError(t, l.Run())
	require.Equal(t, []string{"tick", "timeout"}, order)
}

func TestLoop_NextTickBeforeSetImmediate(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []string
	l.NextTick(func() { order = append(order, "tick") })
	l.SetImmediate(func() { order = append(order, "immediate") })

	require.NoError(t, l.Run())
	require.Equal(t, []string{"tick", "immediate"}, order)
}

func TestLoop_TimerHoldsRefUntilFiredOrCancelled(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	cancel := l.SetTimeout(50, func() {})
	require.Equal(t, int64(1), l.RefCount())
	cancel()
	require.Equal(t, int64(0), l.RefCount())

	// cancelling twice is a no-op
	cancel()
	require.Equal(t, int64(0), l.RefCount())
}

func TestLoop_CancelAfterFireIsNoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var fired bool
	cancel := l.SetTimeout(0, func() { fired = true })
	require.NoError(t, l.Run())
	require.True(t, fired)
	require.Equal(t, int64(0), l.RefCount())

	cancel()
	require.Equal(t, int64(0), l.RefCount())
}

func TestLoop_IntervalHoldsSingleRefAcrossFirings(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	count := 0
	var cancel CancelFunc
	cancel = l.SetInterval(0, func() {
		count++
		if count >= 3 {
			cancel()
		}
	})
	require.Equal(t, int64(1), l.RefCount())
	require.NoError(t, l.Run())
	require.Equal(t, 3, count)
	require.Equal(t, int64(0), l.RefCount())
}

func TestLoop_MicrotaskEnqueuedByTimerRunsBeforeNextTimer(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []string
	l.SetTimeout(0, func() {
		order = append(order, "timer1")
		l.NextTick(func() { order = append(order, "micro-from-timer1") })
	})
	l.SetTimeout(0, func() { order = append(order, "timer2") })

	require.NoError(t, l.Run())
	require.Equal(t, []string{"timer1", "micro-from-timer1", "timer2"}, order)
}

func TestLoop_StopEndsRunEarly(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	l.Ref()
	l.SetImmediate(func() { l.Stop() })

	require.NoError(t, l.Run())
}

func TestLoop_PanicInMicrotaskDoesNotCrashLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var ran bool
	l.NextTick(func() { panic("boom") })
	l.NextTick(func() { ran = true })

	require.NoError(t, l.Run())
	require.True(t, ran)
}
