package autd

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/metrics"
)

type fakeTransport struct {
	numDevices int
	open       bool
	sent       int
	ackByte    byte
}

func (f *fakeTransport) NumDevices() int { return f.numDevices }
func (f *fakeTransport) IsOpen() bool    { return f.open }
func (f *fakeTransport) Open(ctx context.Context) error {
	f.open = true
	return nil
}
func (f *fakeTransport) Close() error { f.open = false; return nil }
func (f *fakeTransport) Send(frame []byte) error {
	f.sent++
	f.ackByte = frame[0]
	return nil
}
func (f *fakeTransport) Read(into []byte) error {
	for d := 0; d < f.numDevices; d++ {
		into[d*2+1] = f.ackByte
	}
	return nil
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

func TestOpenIsNotIdempotent(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	f := New(geo, tr, logic.DefaultConfig())
	require.NoError(t, f.Open(context.Background()))
	require.True(t, f.IsOpen())
	require.Error(t, f.Open(context.Background()))
}

func TestCloseIsIdempotent(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	f := New(geo, tr, logic.DefaultConfig())
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	require.False(t, tr.open)
}

func TestAppendGainSyncSendsAndRecordsMetrics(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	m := metrics.New(nil)
	f := New(geo, tr, logic.DefaultConfig(), WithMetrics(m))
	require.NoError(t, f.Open(context.Background()))
	defer f.Close()

	require.NoError(t, f.AppendGainSync(&gain.Null{}))
	require.Equal(t, 1, tr.sent)
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(`
# HELP autdhost_frames_sent_total Frames handed to the transport's Send.
# TYPE autdhost_frames_sent_total counter
autdhost_frames_sent_total 1
`), "autdhost_frames_sent_total"))
}

func TestSilentModeTogglesFlagReadByLogic(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	f := New(geo, tr, logic.DefaultConfig())
	require.False(t, f.SilentMode())
	f.SetSilentMode(true)
	require.True(t, f.SilentMode())
}

func TestRemainingInBufferIsZeroBeforeAndAfterOpenWithNoModulationAttached(t *testing.T) {
	geo := newTestGeometry(1)
	tr := &fakeTransport{numDevices: 1}
	f := New(geo, tr, logic.DefaultConfig())
	require.Equal(t, 0, f.RemainingInBuffer())

	require.NoError(t, f.Open(context.Background()))
	defer f.Close()
	require.Equal(t, 0, f.RemainingInBuffer())
}

func TestFirmwareInfoListHarvestsPerDeviceVersions(t *testing.T) {
	geo := newTestGeometry(2)
	tr := &fakeTransport{numDevices: 2}
	f := New(geo, tr, logic.DefaultConfig())
	require.NoError(t, f.Open(context.Background()))
	defer f.Close()

	infos, err := f.FirmwareInfoList()
	require.NoError(t, err)
	require.Len(t, infos, 2)
}
