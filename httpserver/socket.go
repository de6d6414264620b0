package httpserver

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listen binds a non-blocking TCP listening socket on host:port, grounded
// on the raw-epoll listener pattern the pack's standalone examples reach
// for (socket/bind/listen/accept straight over golang.org/x/sys/unix)
// rather than net.Listener, since the event loop owns the fd directly
// through its poller. port 0 asks the kernel for an ephemeral port;
// actualPort reports whichever one was bound.
func listen(host string, port int) (fd int, actualPort int, err error) {
	ip := net.ParseIP(host)
	if host == "" {
		ip = net.IPv4zero
	}

	domain := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, 0, err
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, 0, err
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, 0, err
	}

	if domain == unix.AF_INET6 {
		var sa unix.SockaddrInet6
		sa.Port = port
		if ip != nil {
			copy(sa.Addr[:], ip.To16())
		}
		err = unix.Bind(fd, &sa)
	} else {
		var sa unix.SockaddrInet4
		sa.Port = port
		if ip != nil && ip.To4() != nil {
			copy(sa.Addr[:], ip.To4())
		}
		err = unix.Bind(fd, &sa)
	}
	if err != nil {
		_ = unix.Close(fd)
		return -1, 0, err
	}

	if err = unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, 0, err
	}

	actualPort, err = boundPort(fd, domain)
	if err != nil {
		_ = unix.Close(fd)
		return -1, 0, err
	}

	return fd, actualPort, nil
}

// listenBacklog mirrors the common default used by the raw-socket
// examples in the pack.
const listenBacklog = 1024

func boundPort(fd, domain int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	}
	return 0, nil
}

// acceptAll accepts every connection currently queued on listenFD,
// non-blocking, returning each as a non-blocking client fd plus its
// remote address string. Stops at the first EAGAIN/EWOULDBLOCK.
func acceptAll(listenFD int, onAccept func(fd int, remoteAddr string)) {
	for {
		connFD, sa, err := unix.Accept(listenFD)
		if err != nil {
			return
		}
		_ = unix.SetNonblock(connFD, true)
		onAccept(connFD, remoteAddrString(sa))
	}
}

func remoteAddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
	}
	return ""
}
