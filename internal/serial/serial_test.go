package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTimeoutComputation(t *testing.T) {
	d := &Device{state: defaultLineState()}
	d.state.readTotalTimeoutMultiplier = 10
	d.state.readTotalTimeoutConstant = 100

	got := d.readWriteTimeout(5, d.state.readTotalTimeoutMultiplier, d.state.readTotalTimeoutConstant)
	require.Equal(t, 150*time.Millisecond, got)
}

func TestTimeoutClampsToDefault(t *testing.T) {
	d := &Device{state: defaultLineState()}
	got := d.readWriteTimeout(1000000, 1000, 0)
	require.Equal(t, defaultTimeout, got)
}

func TestWaitReadableRespectsCancel(t *testing.T) {
	r, w, err := pipe(t)
	require.NoError(t, err)
	defer unix.Close(r)
	defer unix.Close(w)

	cancel := make(chan struct{})
	close(cancel)
	n, status := waitReadable(r, make([]byte, 4), 5*time.Second, cancel)
	require.Equal(t, 0, n)
	require.Equal(t, uint32(0xC0000120), status) // StatusCancelled
}

func TestWaitReadableReturnsData(t *testing.T) {
	r, w, err := pipe(t)
	require.NoError(t, err)
	defer unix.Close(r)
	defer unix.Close(w)

	go func() { _, _ = unix.Write(w, []byte("hi")) }()

	buf := make([]byte, 4)
	n, status := waitReadable(r, buf, 2*time.Second, make(chan struct{}))
	require.Equal(t, uint32(0), status)
	require.Equal(t, "hi", string(buf[:n]))
}

func pipe(t *testing.T) (int, int, error) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	_ = unix.SetNonblock(fds[0], true)
	_ = unix.SetNonblock(fds[1], true)
	return fds[0], fds[1], nil
}
