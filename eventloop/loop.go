package eventloop

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is the single-threaded cooperative scheduler described by the data
// model: a fixed phase order per iteration across microtasks, timers,
// immediates and I/O readiness, with reference counting for liveness.
//
// The poller and its fd table are owned exclusively by the thread that
// calls Run. The microtask and immediate queues and the timer heap may be
// appended to from any goroutine and are guarded by mu; the wake plumbing
// and the stop/running flags are atomic. refCount is atomic because Ref/
// Unref may legitimately be called from a callback running on the loop
// thread while another goroutine is, e.g., tearing down a server.
type Loop struct {
	cfg *config

	state    fastState
	stopFlag atomic.Bool

	poller  poller
	fds     map[int]ioCallback
	readyEv []readyEvent

	refCount atomic.Int64

	mu         sync.Mutex
	microtasks []func()
	immediates []func()
	timers     timerHeap
	timerSeq   int64

	wakeReadFD  int
	wakeWriteFD int
	wakePending atomic.Bool

	running atomic.Bool
}

// New constructs a Loop and initialises its poller and wake mechanism. The
// returned Loop is not running until Run is called.
func New(opts ...Option) (*Loop, error) {
	l := &Loop{
		cfg:  newConfig(opts),
		fds:  make(map[int]ioCallback),
		poller: newPoller(),
	}
	if err := l.poller.init(); err != nil {
		return nil, err
	}
	readFD, writeFD, err := createWakeFD()
	if err != nil {
		_ = l.poller.close()
		return nil, err
	}
	l.wakeReadFD, l.wakeWriteFD = readFD, writeFD
	if err := l.poller.registerFD(readFD, EventRead); err != nil {
		_ = closeWakeFD(readFD, writeFD)
		_ = l.poller.close()
		return nil, err
	}
	l.fds[readFD] = func(IOEvents) {
		drainWake(l.wakeReadFD)
		l.wakePending.Store(false)
	}
	return l, nil
}

// Ref increments the loop's liveness reference count. Run will not return
// on its own while the count is positive, nor while microtask/immediate
// work is pending.
func (l *Loop) Ref() { l.refCount.Add(1) }

// Unref decrements the reference count. Decrementing below zero is a
// programmer error per the data model; it is reported but not fatal.
func (l *Loop) Unref() {
	if l.refCount.Add(-1) < 0 {
		l.cfg.logger.Error("eventloop: ref count went negative")
	}
}

// RefCount returns the current reference count.
func (l *Loop) RefCount() int64 { return l.refCount.Load() }

// Run drives the loop until quiescent (ref count reaches zero with no
// pending microtask or immediate) or Stop is called. It returns
// ErrAlreadyRunning if called while already running and ErrStopped if
// called again after it has returned, and must not be called re-entrantly
// from inside the loop itself.
func (l *Loop) Run() error {
	if !l.state.cas(stateIdle, stateRunning) {
		if l.state.load() == stateStopped {
			return ErrStopped
		}
		return ErrAlreadyRunning
	}
	if l.running.Load() {
		return ErrAlreadyRunning
	}
	l.running.Store(true)
	defer l.running.Store(false)

	for {
		l.drainMicrotasks()

		if l.quiescent() {
			break
		}

		timeout := l.calculateTimeout()
		l.pollIO(timeout)
		l.fireExpiredTimers()
		l.dispatchReadyIO()
		l.runImmediates()

		if l.stopFlag.Load() {
			break
		}
	}

	l.state.store(stateStopped)
	return nil
}

// Stop requests the current iteration finish and Run return, regardless of
// pending work. Safe to call from any goroutine.
func (l *Loop) Stop() {
	l.stopFlag.Store(true)
	l.wake()
}

// IsRunning reports whether Run is currently executing on this loop.
func (l *Loop) IsRunning() bool { return l.running.Load() }

// quiescent implements step 2: true once the ref count has reached zero
// and both macrotask-adjacent queues are empty.
func (l *Loop) quiescent() bool {
	if l.refCount.Load() > 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.microtasks) == 0 && len(l.immediates) == 0
}

// drainMicrotasks empties the microtask queue, including any microtasks
// enqueued by a microtask while draining - step 1 of the iteration, and
// also interleaved after every timer, I/O handler, and immediate.
func (l *Loop) drainMicrotasks() {
	for {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.microtasks
		l.microtasks = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.safeExecute(fn)
		}
	}
}

// calculateTimeout computes step 3: zero if immediates are pending (a
// poll must not block when there's already work queued behind it), else
// time to the nearest timer deadline, else the configured default.
func (l *Loop) calculateTimeout() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.immediates) > 0 {
		return 0
	}
	if next := l.timers.peek(); next != nil {
		remaining := next.deadline - nowMillis()
		if remaining < 0 {
			remaining = 0
		}
		return int(remaining)
	}
	return int(l.cfg.defaultPollTimeout / time.Millisecond)
}

func (l *Loop) pollIO(timeoutMs int) {
	l.readyEv = l.readyEv[:0]
	ev, err := l.poller.poll(timeoutMs, l.readyEv)
	if err != nil {
		l.cfg.logger.Error("eventloop: poll failed", "err", err)
		return
	}
	l.readyEv = ev
}

// fireExpiredTimers is step 5: fire due timers in deadline order, draining
// microtasks after each. Interval timers are re-armed rather than popped
// for good.
func (l *Loop) fireExpiredTimers() {
	for {
		l.mu.Lock()
		entry := l.timers.peek()
		if entry == nil || entry.deadline > nowMillis() {
			l.mu.Unlock()
			return
		}
		l.timers.pop()
		if entry.cancelled {
			l.mu.Unlock()
			continue
		}
		if entry.interval > 0 {
			entry.deadline = nowMillis() + entry.interval
			l.timers.push(entry)
		} else {
			entry.refReleased = true
			l.refCount.Add(-1)
		}
		thunk := entry.thunk
		l.mu.Unlock()

		l.safeExecute(thunk)
		l.drainMicrotasks()
	}
}

// dispatchReadyIO is step 6: invoke the handler for each fd the poll
// reported ready, in the poll's reported order, draining microtasks after
// each.
func (l *Loop) dispatchReadyIO() {
	for _, ev := range l.readyEv {
		cb, ok := l.fds[ev.fd]
		if !ok {
			continue
		}
		ev := ev
		l.safeExecute(func() { cb(ev.events) })
		l.drainMicrotasks()
	}
	l.readyEv = l.readyEv[:0]
}

// runImmediates is step 7: run immediates queued before or during this
// iteration, draining microtasks after each.
func (l *Loop) runImmediates() {
	for {
		l.mu.Lock()
		if len(l.immediates) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.immediates[0]
		l.immediates = l.immediates[1:]
		l.mu.Unlock()

		l.safeExecute(fn)
		l.drainMicrotasks()
	}
}

// safeExecute recovers panics from user code at this phase boundary and
// reports them; the loop itself never crashes.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{Value: r, Stack: debug.Stack()}
			l.cfg.logger.Error("eventloop: recovered panic", "panic", perr, "stack", string(perr.Stack))
		}
	}()
	fn()
}

// scheduleMicrotask enqueues fn for the next microtask drain. Safe to call
// from any goroutine; when called from outside the loop thread it wakes a
// blocked poll.
func (l *Loop) scheduleMicrotask(fn func()) {
	l.mu.Lock()
	l.microtasks = append(l.microtasks, fn)
	l.mu.Unlock()
	l.wake()
}

// wake interrupts a blocked poll so newly queued work is seen promptly.
// Coalesced via wakePending so a burst of cross-thread enqueues results in
// at most one pending eventfd/pipe write.
func (l *Loop) wake() {
	if l.wakePending.CompareAndSwap(false, true) {
		_ = writeWake(l.wakeWriteFD)
	}
}

// RegisterFD registers fd for the given interest; handler is invoked with
// the observed events once the poll reports it ready. Must be called from
// the loop thread (accept/read handlers, or Server.Listen before Run).
func (l *Loop) RegisterFD(fd int, events IOEvents, handler func(IOEvents)) error {
	if err := l.poller.registerFD(fd, events); err != nil {
		return err
	}
	l.fds[fd] = handler
	return nil
}

// UnregisterFD removes fd from the poller.
func (l *Loop) UnregisterFD(fd int) error {
	delete(l.fds, fd)
	return l.poller.unregisterFD(fd)
}

// ModifyFD changes the interest set for an already-registered fd.
func (l *Loop) ModifyFD(fd int, events IOEvents) error {
	return l.poller.modifyFD(fd, events)
}

// Close tears down the poller and wake fds. Call after Run has returned.
func (l *Loop) Close() error {
	_ = closeWakeFD(l.wakeReadFD, l.wakeWriteFD)
	return l.poller.close()
}

var nowMillis = func() int64 { return time.Now().UnixMilli() }
