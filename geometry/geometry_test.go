package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vetricore/autdhost/wire"
)

func TestTransducerLocalPositionsSkipsMissingSlots(t *testing.T) {
	positions := TransducerLocalPositions()

	// 18*14 grid minus three missing positions.
	require.Equal(t, wire.NumTransInUnit, len(positions))

	// Row-major: the first row is intact, so index 18 starts row y=1
	// at x=0, and x=1,2 are skipped.
	require.Equal(t, Vector3{X: 0, Y: wire.TransducerSize}, positions[18])
	require.Equal(t, Vector3{X: 3 * wire.TransducerSize, Y: wire.TransducerSize}, positions[19])

	for _, p := range positions {
		if p.Y == wire.TransducerSize {
			x := p.X / wire.TransducerSize
			require.NotEqual(t, 1.0, x)
			require.NotEqual(t, 2.0, x)
			require.NotEqual(t, 16.0, x)
		}
	}
}

func TestToLocalInvertsGlobalPosition(t *testing.T) {
	dev := NewDevice(
		Vector3{X: 100, Y: -50, Z: 10},
		Vector3{Y: 1},  // local x axis -> global +y
		Vector3{X: -1}, // local y axis -> global -x
		Vector3{Z: 1},  // emission normal unchanged
	)

	for _, ti := range []int{0, 1, 100, wire.NumTransInUnit - 1} {
		global := dev.TransducerGlobalPosition(ti)
		local := dev.ToLocal(global)
		want := TransducerLocalPositions()[ti]
		require.InDelta(t, want.X, local.X, 1e-9)
		require.InDelta(t, want.Y, local.Y, 1e-9)
		require.InDelta(t, want.Z, local.Z, 1e-9)
	}
}

func TestGeometryIsImmutableSnapshot(t *testing.T) {
	d0 := NewDevice(Vector3{}, Vector3{X: 1}, Vector3{Y: 1}, Vector3{Z: 1})
	devices := []*Device{d0}
	g := New(devices...)

	devices[0] = nil
	require.NotNil(t, g.Device(0))
	require.Equal(t, 1, g.NumDevices())

	out := g.Devices()
	out[0] = nil
	require.NotNil(t, g.Device(0))
}
