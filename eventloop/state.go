package eventloop

import "sync/atomic"

// loopState tracks the lifecycle of a Loop across Run, guarded by CAS so a
// concurrent second Run cannot also enter the running state. Stop does not
// change it; Stop signals through the loop's separate atomic stop flag.
type loopState int32

const (
	stateIdle loopState = iota
	stateRunning
	stateStopping
	stateStopped
)

// fastState is a small CAS-based state holder, grounded on the teacher's
// atomic state machine but trimmed to the transitions this loop needs.
type fastState struct {
	v atomic.Int32
}

func (s *fastState) load() loopState {
	return loopState(s.v.Load())
}

func (s *fastState) store(v loopState) {
	s.v.Store(int32(v))
}

func (s *fastState) cas(from, to loopState) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
