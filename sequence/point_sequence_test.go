package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/wire"
)

func TestSetFreqMatchesWorkedExample(t *testing.T) {
	ps := NewPointSequence()
	pts := make([]geometry.Vector3, 200)
	for i := range pts {
		pts[i] = geometry.Vector3{X: 96, Y: 75.7, Z: 150}
	}
	require.NoError(t, ps.AddPoints(pts))

	actual := ps.SetFreq(200)
	require.Equal(t, uint16(1), ps.SamplingFreqDiv())
	require.InDelta(t, 200.0, actual, 1e-9)
}

func TestAddPointsFailsOnlyOnOverflow(t *testing.T) {
	ps := NewPointSequence()
	require.NoError(t, ps.AddPoints(make([]geometry.Vector3, wire.PointSeqBufferSizeMax)))
	require.Error(t, ps.AddPoint(geometry.Vector3{}))
	require.Equal(t, wire.PointSeqBufferSizeMax, ps.Len())
}

func TestChunkingCapsAtMaxPerChunk(t *testing.T) {
	ps := NewPointSequence()
	require.NoError(t, ps.AddPoints(make([]geometry.Vector3, 200)))
	chunks := 0
	for !ps.Done() {
		chunk := ps.NextChunk()
		require.LessOrEqual(t, len(chunk), wire.PointSeqMaxPerChunk)
		ps.Advance(len(chunk))
		chunks++
	}
	require.Equal(t, 5, chunks)
}

func TestGainSequenceCyclesPerMode(t *testing.T) {
	require.Equal(t, 1, DutyPhaseFull.GainsPerCycle())
	require.Equal(t, 2, PhaseFull.GainsPerCycle())
	require.Equal(t, 4, PhaseHalf.GainsPerCycle())

	s := NewGainSequence(PhaseFull)
	require.Equal(t, 0, s.Cycles())
}
