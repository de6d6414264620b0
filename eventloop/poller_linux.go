//go:build linux

package eventloop

import (
	"golang.org/x/sys/unix"
)

// epollPoller is grounded on the teacher's FastPoller, with two deliberate
// departures: no RWMutex (the loop thread is the sole caller, per the
// data model's ownership rule) and no inline dispatch - poll hands back a
// plain slice of ready fds so the loop can fire timers before dispatching
// them, matching the fixed phase order.
type epollPoller struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	fds      map[int]IOEvents
}

func newPoller() poller {
	return &epollPoller{fds: make(map[int]IOEvents)}
}

func (p *epollPoller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	return nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) registerFD(fd int, events IOEvents) error {
	if _, ok := p.fds[fd]; ok {
		return ErrFDRegistered
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.fds[fd] = events
	return nil
}

func (p *epollPoller) unregisterFD(fd int) error {
	if _, ok := p.fds[fd]; !ok {
		return ErrFDUnknown
	}
	delete(p.fds, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) modifyFD(fd int, events IOEvents) error {
	if _, ok := p.fds[fd]; !ok {
		return ErrFDUnknown
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	p.fds[fd] = events
	return nil
}

func (p *epollPoller) poll(timeoutMs int, dst []readyEvent) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		dst = append(dst, readyEvent{fd: fd, events: epollToEvents(p.eventBuf[i].Events)})
	}
	return dst, nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}

// createWakeFD creates an eventfd used to interrupt a blocked poll when
// work is submitted from another goroutine. The same fd serves as both
// read and write end.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

func writeWake(writeFD int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(writeFD, buf[:])
	return err
}

func drainWake(readFD int) {
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	if writeFD != readFD {
		_ = unix.Close(writeFD)
	}
	return unix.Close(readFD)
}
