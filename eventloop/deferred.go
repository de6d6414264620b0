package eventloop

// Deferred is the systems-language stand-in for the source's deferred-work
// token: a one-shot completion carrying either success or an error. It
// settles exactly once; continuations registered via OnSettle always run as
// microtasks on the loop that created the Deferred, whether they were
// registered before or after settlement, so callers never observe
// re-entrant delivery.
type Deferred struct {
	loop      *Loop
	settled   bool
	err       error
	callbacks []func(error)
}

// NewDeferred returns an open Deferred bound to this loop.
func (l *Loop) NewDeferred() *Deferred {
	return &Deferred{loop: l}
}

// CompletedDeferred returns a Deferred that is already settled with err
// (nil for success). Used for idempotent no-op returns, e.g. a second call
// to Response.end.
func (l *Loop) CompletedDeferred(err error) *Deferred {
	return &Deferred{loop: l, settled: true, err: err}
}

// Resolve settles the Deferred successfully. A no-op if already settled.
func (d *Deferred) Resolve() { d.settle(nil) }

// Reject settles the Deferred with err. A no-op if already settled.
func (d *Deferred) Reject(err error) { d.settle(err) }

func (d *Deferred) settle(err error) {
	if d.settled {
		return
	}
	d.settled = true
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	for _, cb := range callbacks {
		cb := cb
		d.loop.scheduleMicrotask(func() { cb(d.err) })
	}
}

// OnSettle registers fn to run as a microtask once the Deferred settles,
// with the settlement error (nil on success). If already settled, fn is
// scheduled immediately as a microtask - the loop's executor treats
// resumption of already-complete work identically to a fresh settlement.
func (d *Deferred) OnSettle(fn func(error)) {
	if d.settled {
		err := d.err
		d.loop.scheduleMicrotask(func() { fn(err) })
		return
	}
	d.callbacks = append(d.callbacks, fn)
}

// IsSettled reports whether Resolve or Reject has been called.
func (d *Deferred) IsSettled() bool { return d.settled }

// Err returns the settlement error, valid only once IsSettled is true.
func (d *Deferred) Err() error { return d.err }

// Executor schedules user continuations as microtasks, giving callers an
// execution context that interleaves with the loop's phases identically to
// NextTick. Failures are reported to the loop's failure sink rather than
// propagated, so a user's asynchronous callback can never crash the loop.
type Executor struct {
	loop *Loop
}

// ExecutionContext returns the loop's executor.
func (l *Loop) ExecutionContext() *Executor {
	return &Executor{loop: l}
}

// Run schedules fn to execute as a microtask; panics are caught and
// reported the same way as any other microtask.
func (e *Executor) Run(fn func()) {
	e.loop.scheduleMicrotask(fn)
}
