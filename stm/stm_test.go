package stm

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/wire"
)

// fakeTimer never actually schedules anything; Start just remembers
// its callback so the test can invoke it synchronously. stopped is
// atomic because the controller's failure-escalation path calls Stop
// from its own goroutine.
type fakeTimer struct {
	fn      func()
	stopped atomic.Bool
}

func (f *fakeTimer) Start(interval time.Duration, fn func()) { f.fn = fn }
func (f *fakeTimer) Stop()                                   { f.stopped.Store(true) }

type fakeTransport struct {
	numDevices int
	sent       int
	lastLen    int
}

func (f *fakeTransport) NumDevices() int                { return f.numDevices }
func (f *fakeTransport) IsOpen() bool                   { return true }
func (f *fakeTransport) Open(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                   { return nil }
func (f *fakeTransport) Read(into []byte) error         { return nil }

func (f *fakeTransport) Send(frame []byte) error {
	f.sent++
	f.lastLen = len(frame)
	return nil
}

type alwaysFailTransport struct {
	fakeTransport
}

func (f *alwaysFailTransport) Send(frame []byte) error {
	f.sent++
	return fmt.Errorf("link down")
}

func newTestGeometry(numDevices int) *geometry.Geometry {
	devices := make([]*geometry.Device, numDevices)
	for i := range devices {
		devices[i] = geometry.NewDevice(
			geometry.Vector3{X: float64(i) * 200},
			geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1},
		)
	}
	return geometry.New(devices...)
}

func TestStartRequiresNonEmptyGainList(t *testing.T) {
	geo := newTestGeometry(1)
	l := logic.New(geo, &fakeTransport{numDevices: 1}, logic.DefaultConfig(), nil)
	tm := &fakeTimer{}
	c := NewController(l, geo, func() PeriodicTimer { return tm }, nil)
	require.Error(t, c.Start(100))
}

func TestStartBuildsFramesAndTickCyclesThroughThem(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	l := logic.New(geo, tr, logic.DefaultConfig(), nil)
	tm := &fakeTimer{}
	c := NewController(l, geo, func() PeriodicTimer { return tm }, nil)

	c.Add(&gain.Null{})
	c.Add(&gain.Null{})
	require.NoError(t, c.Start(200))
	require.NotNil(t, tm.fn)

	tm.fn()
	tm.fn()
	tm.fn()
	require.Equal(t, 3, tr.sent)
	require.Equal(t, wire.HeaderSize+wire.BodySize, tr.lastLen)
}

func TestFinishStopsAndClearsGains(t *testing.T) {
	geo := newTestGeometry(1)
	l := logic.New(geo, &fakeTransport{numDevices: 1}, logic.DefaultConfig(), nil)
	tm := &fakeTimer{}
	c := NewController(l, geo, func() PeriodicTimer { return tm }, nil)

	c.Add(&gain.Null{})
	require.NoError(t, c.Start(100))
	c.Finish()
	require.True(t, tm.stopped.Load())
	require.Empty(t, c.gains)
}

func TestTickStopsAfterRepeatedSendFailures(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &alwaysFailTransport{fakeTransport{numDevices: 1}}
	l := logic.New(geo, tr, logic.DefaultConfig(), nil)
	tm := &fakeTimer{}
	c := NewController(l, geo, func() PeriodicTimer { return tm }, nil)

	c.Add(&gain.Null{})
	require.NoError(t, c.Start(100))

	for i := 0; i < maxConsecutiveSendFailures; i++ {
		require.False(t, tm.stopped.Load())
		tm.fn()
	}
	// The escalation joins the timer from its own goroutine, so the
	// stop is observed shortly after the final failing tick.
	require.Eventually(t, tm.stopped.Load, time.Second, time.Millisecond)
	require.Equal(t, maxConsecutiveSendFailures, tr.sent)
}
