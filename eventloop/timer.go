package eventloop

// CancelFunc cancels a previously scheduled timer. Idempotent: calling it
// more than once, or after the timer has already fired, is a no-op. Exactly
// one of {cancel, fire} takes effect for a given timer and each releases
// the timer's ref exactly once.
type CancelFunc func()

// NextTick appends thunk to the microtask queue. Safe to call from any
// goroutine.
func (l *Loop) NextTick(thunk func()) {
	l.scheduleMicrotask(thunk)
}

// SetImmediate appends thunk to the immediate queue, to run after the I/O
// poll completes in the loop's current or next iteration.
func (l *Loop) SetImmediate(thunk func()) {
	l.mu.Lock()
	l.immediates = append(l.immediates, thunk)
	l.mu.Unlock()
	l.wake()
}

// SetTimeout enqueues thunk to fire once delayMs from now. Increments the
// ref count by one for the life of the timer; the returned CancelFunc
// releases it if called before firing.
func (l *Loop) SetTimeout(delayMs int64, thunk func()) CancelFunc {
	return l.scheduleTimer(delayMs, 0, thunk)
}

// SetInterval enqueues thunk to fire every intervalMs, re-arming itself
// after each firing. Holds a single ref for the interval's entire
// lifetime, not one per firing; the returned CancelFunc releases that ref.
// An intervalMs below 1 is treated as 1.
func (l *Loop) SetInterval(intervalMs int64, thunk func()) CancelFunc {
	if intervalMs < 1 {
		intervalMs = 1
	}
	return l.scheduleTimer(intervalMs, intervalMs, thunk)
}

func (l *Loop) scheduleTimer(delayMs, intervalMs int64, thunk func()) CancelFunc {
	l.Ref()

	l.mu.Lock()
	l.timerSeq++
	entry := &timerEntry{
		deadline: nowMillis() + delayMs,
		seq:      l.timerSeq,
		thunk:    thunk,
		interval: intervalMs,
	}
	l.timers.push(entry)
	l.mu.Unlock()
	l.wake()

	return func() {
		l.mu.Lock()
		if entry.cancelled || entry.refReleased {
			l.mu.Unlock()
			return
		}
		entry.cancelled = true
		entry.refReleased = true
		l.mu.Unlock()
		l.Unref()
	}
}

// Register subscribes fd for interest and invokes handler when the loop's
// I/O poll reports it ready.
func (l *Loop) Register(fd int, events IOEvents, handler func(IOEvents)) error {
	return l.RegisterFD(fd, events, handler)
}
