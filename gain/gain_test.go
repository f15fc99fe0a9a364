package gain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/wire"
)

func TestDutyFromAmplitudeEndpoints(t *testing.T) {
	require.Equal(t, uint8(0), DutyFromAmplitude(0))
	require.Equal(t, uint8(255), DutyFromAmplitude(1))
	require.Equal(t, uint8(0), DutyFromAmplitude(-0.5))
	require.Equal(t, uint8(255), DutyFromAmplitude(2))
}

func TestDutyFromAmplitudeMatchesFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amp := rapid.Float64Range(0, 1).Draw(t, "amp")
		want := uint8(math.Round(510 * math.Asin(amp) / math.Pi))
		if got := DutyFromAmplitude(amp); got != want {
			t.Fatalf("duty(%v) = %d, want %d", amp, got, want)
		}
	})
}

func TestPhaseFromDistanceWrapsAtWavelength(t *testing.T) {
	wl := wire.UltrasoundWavelength
	require.Equal(t, PhaseFromDistance(0.1), PhaseFromDistance(0.1+wl))
	require.Equal(t, PhaseFromDistance(0.1), PhaseFromDistance(0.1+3*wl))
}

func TestNullGainBuildsAllZeroDrives(t *testing.T) {
	geo := geometry.New(
		geometry.NewDevice(geometry.Vector3{}, geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1}),
		geometry.NewDevice(geometry.Vector3{X: 200}, geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1}),
	)
	n := &Null{}
	drives, err := n.Build(geo)
	require.NoError(t, err)
	require.Len(t, drives, 2)
	for _, da := range drives {
		for _, d := range da {
			require.Equal(t, Drive(0), d)
		}
	}
}

func TestFocalPointMatchesPhaseFormulaPerTransducer(t *testing.T) {
	dev := geometry.NewDevice(geometry.Vector3{}, geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1})
	geo := geometry.New(dev)
	target := geometry.Vector3{X: 90, Y: 70, Z: 150}

	f := NewFocalPoint(target, 1.0)
	drives, err := f.Build(geo)
	require.NoError(t, err)
	require.Len(t, drives, 1)

	for ti := 0; ti < wire.NumTransInUnit; ti++ {
		pos := dev.TransducerGlobalPosition(ti)
		diff := target.Sub(pos)
		dist := math.Sqrt(diff.Dot(diff))
		require.Equal(t, PhaseFromDistance(dist), drives[0][ti].Phase(), "transducer %d", ti)
		require.Equal(t, uint8(0xFF), drives[0][ti].Duty(), "transducer %d", ti)
	}
}

func TestBuildIsIdempotentUntilInvalidated(t *testing.T) {
	geo := geometry.New(
		geometry.NewDevice(geometry.Vector3{}, geometry.Vector3{X: 1}, geometry.Vector3{Y: 1}, geometry.Vector3{Z: 1}),
	)
	f := NewFocalPoint(geometry.Vector3{X: 10, Y: 10, Z: 100}, 0.5)

	first, err := f.Build(geo)
	require.NoError(t, err)
	require.True(t, f.Built())

	// Mutating the target without invalidating must not change the
	// cached result.
	f.Point = geometry.Vector3{X: -10, Y: -10, Z: 50}
	second, err := f.Build(geo)
	require.NoError(t, err)
	require.Equal(t, first, second)

	f.Invalidate()
	require.False(t, f.Built())
	third, err := f.Build(geo)
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}
