package eventloop

// IOEvents is a bitmask of readiness conditions reported by the poller,
// grounded on the teacher's epoll wrapper but trimmed to what this loop
// dispatches on.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// ioCallback is invoked with the events observed for its fd. Unlike the
// teacher's FastPoller, this callback is never invoked inline from inside
// poll: poll only collects readyEvent values, and the loop dispatches them
// itself in its own phase, interleaved with microtask drains and after
// timers have fired, per the fixed iteration order.
type ioCallback func(IOEvents)

// readyEvent is one fd's reported readiness from a single poll call.
type readyEvent struct {
	fd     int
	events IOEvents
}

// poller is the platform-specific I/O multiplexer. The listening socket,
// every connection socket, and the wake fd are all registered through it.
// It is owned exclusively by the loop thread: RegisterFD/UnregisterFD/
// ModifyFD/poll are never called concurrently with each other.
type poller interface {
	init() error
	close() error
	registerFD(fd int, events IOEvents) error
	unregisterFD(fd int) error
	modifyFD(fd int, events IOEvents) error
	// poll blocks for up to timeoutMs (0 = non-blocking, <0 = forever) and
	// appends ready fds to dst, returning the extended slice.
	poll(timeoutMs int, dst []readyEvent) ([]readyEvent, error)
}
