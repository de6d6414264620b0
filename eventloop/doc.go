// Package eventloop implements a single-threaded cooperative scheduler: a
// fixed per-iteration phase order across microtasks, timers, immediates and
// I/O readiness, reference counting for liveness, and a small promise-like
// completion token (Deferred) whose resolution is always delivered as a
// microtask on the loop thread.
//
// Enqueueing work from outside the loop thread (NextTick, SetImmediate,
// SetTimeout, SetInterval) is safe and wakes a blocked poll; everything
// else - fd registration and the poller's registration table - is owned
// exclusively by the loop thread.
package eventloop
