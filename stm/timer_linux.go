//go:build linux

package stm

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// LinuxTimer is a PeriodicTimer backed by a Linux timerfd: its
// CLOCK_MONOTONIC resolution is well under 1ms on any modern kernel,
// and blocking on the fd (rather than polling) avoids busy-waiting.
type LinuxTimer struct {
	fd     int
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLinuxTimer returns an unarmed LinuxTimer.
func NewLinuxTimer() *LinuxTimer {
	return &LinuxTimer{fd: -1}
}

func (t *LinuxTimer) Start(interval time.Duration, fn func()) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		panic(err)
	}
	spec := &unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, spec, nil); err != nil {
		unix.Close(fd)
		panic(err)
	}
	t.fd = fd
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.loop(fn)
}

func (t *LinuxTimer) loop(fn func()) {
	defer close(t.doneCh)
	buf := make([]byte, 8)
	for {
		n, err := unix.Read(t.fd, buf)
		if err != nil || n != 8 {
			return
		}
		select {
		case <-t.stopCh:
			return
		default:
		}
		// fn runs serially within this goroutine: the next tick's
		// read can't observe a new expiration count until fn returns.
		_ = binary.LittleEndian.Uint64(buf)
		fn()
	}
}

// Stop disarms the timer and joins the loop goroutine. The loop wakes
// at the next periodic expiry, observes stopCh, and exits; the fd is
// closed only after the join, because closing it under a blocked read
// would not wake the reader.
func (t *LinuxTimer) Stop() {
	if t.fd < 0 {
		return
	}
	close(t.stopCh)
	<-t.doneCh
	fd := t.fd
	t.fd = -1
	unix.Close(fd)
}
