package logic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/modulation"
	"github.com/vetricore/autdhost/sequence"
	"github.com/vetricore/autdhost/wire"
)

// fakeTransport is an in-memory loopback Transport: Send captures the
// frame's msg_id and immediately arms an ack that reports every device
// as caught up, for deterministic logic tests without real hardware.
type fakeTransport struct {
	numDevices int
	lastMsgID  byte
	lastFrame  []byte
	sendErr    error
}

func (f *fakeTransport) NumDevices() int                { return f.numDevices }
func (f *fakeTransport) IsOpen() bool                   { return true }
func (f *fakeTransport) Open(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                   { return nil }

func (f *fakeTransport) Send(frame []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	h := wire.DecodeHeader(frame)
	f.lastMsgID = h.MsgID
	if h.SeqSize > 0 && h.CPUFlags()&wire.CPUSeqEnd != 0 {
		// A real slave echoes the fixed 0xC0 terminal code on the chunk
		// that closes a sequence upload, not the in-flight message id.
		f.lastMsgID = 0xC0
	}
	f.lastFrame = append([]byte(nil), frame...)
	return nil
}

func (f *fakeTransport) Read(into []byte) error {
	for d := 0; d < f.numDevices; d++ {
		into[d*wire.InputFrameSize+1] = f.lastMsgID
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

func TestSendGainModClearsSeqMode(t *testing.T) {
	tr := &fakeTransport{numDevices: 2}
	l := New(newTestGeometry(2), tr, DefaultConfig(), nil)
	l.seqMode = true

	drives := make([]gain.DriveArray, 2)
	_, err := l.SendGainMod(drives, nil)
	require.NoError(t, err)
	require.False(t, l.SeqMode())
}

func TestSendGainModBlockingSucceedsWithFakeAck(t *testing.T) {
	tr := &fakeTransport{numDevices: 3}
	l := New(newTestGeometry(3), tr, DefaultConfig(), nil)

	drives := make([]gain.DriveArray, 3)
	require.NoError(t, l.SendGainModBlocking(drives, nil))
}

func TestSendGainModAdvancesModulationCursorAndTogglesLoopFlags(t *testing.T) {
	tr := &fakeTransport{numDevices: 1}
	l := New(newTestGeometry(1), tr, DefaultConfig(), nil)

	buf, err := modulation.Static{Amplitude: 1.0, Length: wire.ModFrameSize + 10}.Build(4000, wire.ModBufSizeDefault)
	require.NoError(t, err)

	_, err = l.SendGainMod(nil, buf)
	require.NoError(t, err)
	require.Equal(t, wire.ModFrameSize, buf.Sent())
	first := wire.DecodeHeader(tr.lastFrame)
	require.NotZero(t, first.CPUFlags()&wire.CPULoopBegin)
	require.Zero(t, first.CPUFlags()&wire.CPULoopEnd)

	_, err = l.SendGainMod(nil, buf)
	require.NoError(t, err)
	require.Equal(t, wire.ModFrameSize+10, buf.Sent())
	second := wire.DecodeHeader(tr.lastFrame)
	require.Zero(t, second.CPUFlags()&wire.CPULoopBegin)
	require.NotZero(t, second.CPUFlags()&wire.CPULoopEnd)
}

func TestSendSeqBlockingTransformsPointsIntoEachDevicesLocalFrame(t *testing.T) {
	devices := []*geometry.Device{
		geometry.NewDevice(geometry.Vector3{}, geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1}),
		geometry.NewDevice(geometry.Vector3{X: 200}, geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1}),
	}
	geo := geometry.New(devices...)
	tr := &fakeTransport{numDevices: 2}
	l := New(geo, tr, DefaultConfig(), nil)

	seq := sequence.NewPointSequence()
	require.NoError(t, seq.AddPoint(geometry.Vector3{X: 50}))
	require.NoError(t, l.SendSeqBlocking(seq))

	body := tr.lastFrame[wire.HeaderSize:]
	dev0 := body[:wire.BodySize]
	dev1 := body[wire.BodySize : 2*wire.BodySize]
	require.NotEqual(t, dev0[:10], dev1[:10], "each device must pack its own local-frame coordinates, not a shared global copy")

	wantDev0 := make([]byte, 10)
	wire.PackPointChunk(wantDev0, [][3]float64{{50, 0, 0}})
	wantDev1 := make([]byte, 10)
	wire.PackPointChunk(wantDev1, [][3]float64{{-150, 0, 0}})
	require.Equal(t, wantDev0, dev0[:10])
	require.Equal(t, wantDev1, dev1[:10])
}

func TestSendGainSeqBlockingUploadsEachCycleAndMarksBoundaries(t *testing.T) {
	tr := &fakeTransport{numDevices: 1}
	l := New(newTestGeometry(1), tr, DefaultConfig(), nil)

	seq := sequence.NewGainSequence(sequence.DutyPhaseFull)
	seq.Append(make([]gain.DriveArray, 1))
	seq.Append(make([]gain.DriveArray, 1))
	require.Equal(t, 2, seq.Cycles())

	require.NoError(t, l.SendGainSeqBlocking(seq))
	firstHeader := wire.DecodeHeader(tr.lastFrame)
	require.NotZero(t, firstHeader.CPUFlags()&wire.CPUSeqBegin)
	require.Zero(t, firstHeader.CPUFlags()&wire.CPUSeqEnd)
	require.Equal(t, 1, seq.SentCycles())

	require.NoError(t, l.SendGainSeqBlocking(seq))
	secondHeader := wire.DecodeHeader(tr.lastFrame)
	require.NotZero(t, secondHeader.CPUFlags()&wire.CPUSeqEnd)
	require.True(t, seq.Done())
}

func TestFirmwareInfoListHarvestsPerDeviceVersions(t *testing.T) {
	tr := &fakeTransport{numDevices: 2}
	l := New(newTestGeometry(2), tr, DefaultConfig(), nil)

	versions, err := l.FirmwareInfoList()
	require.NoError(t, err)
	require.Len(t, versions, 2)
}
