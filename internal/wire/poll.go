package wire

import (
	"errors"

	"golang.org/x/sys/unix"
)

// readable polls the socket for read readiness. A timeout of 0 makes it
// a pure readiness check; -1 blocks until data or error. Hangup and
// error conditions count as readable so the subsequent read surfaces
// the failure instead of it being silently swallowed.
func (c *Conn) readable(timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(c.Fd()), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		return fds[0].Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0, nil
	}
}
