package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/modulation"
	"github.com/vetricore/autdhost/wire"
)

// fakeTransport is read by the test goroutine while the pipeline's
// sender goroutine writes it, so the msg-id slot is guarded.
type fakeTransport struct {
	numDevices int

	mu        sync.Mutex
	lastMsgID byte
}

func (f *fakeTransport) NumDevices() int                { return f.numDevices }
func (f *fakeTransport) IsOpen() bool                   { return true }
func (f *fakeTransport) Open(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                   { return nil }

func (f *fakeTransport) Send(frame []byte) error {
	h := wire.DecodeHeader(frame)
	f.mu.Lock()
	f.lastMsgID = h.MsgID
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Read(into []byte) error {
	f.mu.Lock()
	id := f.lastMsgID
	f.mu.Unlock()
	for d := 0; d < f.numDevices; d++ {
		into[d*wire.InputFrameSize+1] = id
	}
	return nil
}

func (f *fakeTransport) msgID() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMsgID
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

func TestPipelineAsyncSendsAppendedGain(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	l := logic.New(geo, tr, logic.DefaultConfig(), nil)
	p := New(l, geo, nil)
	defer p.Close()

	p.AppendGain(&gain.Null{})

	require.Eventually(t, func() bool {
		return tr.msgID() != 0
	}, time.Second, time.Millisecond)
}

func TestPipelineSyncAppendModulationSyncDrainsBuffer(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	l := logic.New(geo, tr, logic.DefaultConfig(), nil)
	p := NewSync(l, geo)

	src := modulation.Static{Amplitude: 1.0, Length: wire.ModFrameSize*2 + 5}
	require.NoError(t, p.AppendModulationSync(src))
}

func TestPipelineAsyncCloseIsIdempotentAndDrains(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	l := logic.New(geo, tr, logic.DefaultConfig(), nil)
	p := New(l, geo, nil)

	p.AppendGain(&gain.Null{})
	p.Close()
	p.Close()
	require.False(t, p.Running())
}
