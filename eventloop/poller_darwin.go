//go:build darwin

package eventloop

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller mirrors epollPoller's shape - grounded on the teacher's
// fastPoller for Darwin, with the same departures: loop-thread-only, no
// inline dispatch.
type kqueuePoller struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	fds      map[int]IOEvents
}

func newPoller() poller {
	return &kqueuePoller{fds: make(map[int]IOEvents)}
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	return nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}

func (p *kqueuePoller) registerFD(fd int, events IOEvents) error {
	if _, ok := p.fds[fd]; ok {
		return ErrFDRegistered
	}
	kevs := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
		return err
	}
	p.fds[fd] = events
	return nil
}

func (p *kqueuePoller) unregisterFD(fd int) error {
	cur, ok := p.fds[fd]
	if !ok {
		return ErrFDUnknown
	}
	kevs := eventsToKevents(fd, cur, unix.EV_DELETE)
	_, _ = unix.Kevent(p.kq, kevs, nil, nil)
	delete(p.fds, fd)
	return nil
}

func (p *kqueuePoller) modifyFD(fd int, events IOEvents) error {
	cur, ok := p.fds[fd]
	if !ok {
		return ErrFDUnknown
	}
	if del := eventsToKevents(fd, cur, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	add := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(add) > 0 {
		if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = events
	return nil
}

func (p *kqueuePoller) poll(timeoutMs int, dst []readyEvent) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		kev := p.eventBuf[i]
		fd := int(kev.Ident)
		var e IOEvents
		switch kev.Filter {
		case unix.EVFILT_READ:
			e = EventRead
		case unix.EVFILT_WRITE:
			e = EventWrite
		}
		if kev.Flags&unix.EV_EOF != 0 {
			e |= EventHangup
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			e |= EventError
		}
		dst = append(dst, readyEvent{fd: fd, events: e})
	}
	return dst, nil
}

// eventsToKevents builds one Kevent_t per interest bit; kqueue registers
// read and write interest as separate filters, unlike epoll's single mask.
func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevs []unix.Kevent_t
	if events&EventRead != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevs
}

// createWakeFD creates a self-pipe used to interrupt a blocked poll when
// work is submitted from another goroutine; Darwin has no eventfd
// equivalent so read and write live on separate fds, unlike Linux.
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func writeWake(writeFD int) error {
	var buf [1]byte
	_, err := unix.Write(writeFD, buf[:])
	return err
}

func drainWake(readFD int) {
	var buf [64]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	_ = unix.Close(writeFD)
	return unix.Close(readFD)
}
