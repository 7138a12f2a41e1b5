package serial

import (
	"time"

	"github.com/corerdp/rdpdr/internal/wire"
	"golang.org/x/sys/unix"
)

// pollInterval bounds how long each select() call blocks, so a cancel
// signal is noticed promptly instead of waiting out the full timeout.
const pollInterval = 100 * time.Millisecond

// waitReadable blocks until fd is readable, timeout elapses, or cancel
// fires, then performs one read (spec.md §4.12: async READ completed
// from a select loop).
func waitReadable(fd int, buf []byte, timeout time.Duration, cancel <-chan struct{}) (int, uint32) {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-cancel:
			return 0, wire.StatusCancelled
		default:
		}
		if time.Now().After(deadline) {
			return 0, wire.StatusTimeout
		}
		ready, err := selectOne(fd, true, pollInterval)
		if err != nil {
			return 0, wire.StatusUnsuccessful
		}
		if !ready {
			continue
		}
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return 0, wire.StatusUnsuccessful
		}
		return n, wire.StatusSuccess
	}
}

// waitWritable blocks until fd is writable, draining data fully or until
// timeout/cancel, looping on partial writes (spec.md §4.12 "on short
// write, loop until input exhausted").
func waitWritable(fd int, data []byte, timeout time.Duration, cancel <-chan struct{}) (int, uint32) {
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(data) {
		select {
		case <-cancel:
			return written, wire.StatusCancelled
		default:
		}
		if time.Now().After(deadline) {
			return written, wire.StatusTimeout
		}
		ready, err := selectOne(fd, false, pollInterval)
		if err != nil {
			return written, wire.StatusUnsuccessful
		}
		if !ready {
			continue
		}
		n, err := unix.Write(fd, data[written:])
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return written, wire.StatusUnsuccessful
		}
		written += n
	}
	return written, wire.StatusSuccess
}

// writeAll writes p to fd, retrying on EAGAIN/EINTR without a deadline —
// used for the small immediate-char IOCTL, never for bulk WRITE IRPs.
func writeAll(fd int, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return written, err
		}
		written += n
	}
	return written, nil
}

// selectOne waits up to timeout for fd to become ready for read or write.
func selectOne(fd int, forRead bool, timeout time.Duration) (bool, error) {
	var rfds, wfds unix.FdSet
	set := &rfds
	if !forRead {
		set = &wfds
	}
	set.Set(fd)
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(fd+1, &rfds, &wfds, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}
