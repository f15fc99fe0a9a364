//go:build !linux

package stm

import "time"

// GenericTimer is a PeriodicTimer backed by time.Ticker, the portable
// fallback used on platforms without a timerfd-equivalent wired in.
// Windows/macOS would back this with timeSetEvent/a spinning pthread
// respectively; this module targets Linux as its primary platform and
// ships the stdlib ticker elsewhere to stay buildable.
type GenericTimer struct {
	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewGenericTimer returns an unarmed GenericTimer.
func NewGenericTimer() *GenericTimer {
	return &GenericTimer{}
}

func (t *GenericTimer) Start(interval time.Duration, fn func()) {
	t.ticker = time.NewTicker(interval)
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go func() {
		defer close(t.doneCh)
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.stopCh:
				return
			}
		}
	}()
}

func (t *GenericTimer) Stop() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stopCh)
	<-t.doneCh
}
