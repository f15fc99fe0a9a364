// Package sequence implements the two device-uploaded streams: a
// PointSequence of focal-point coordinates replayed by the firmware's
// hardware STM engine, and a GainSequence of pre-built drive arrays.
package sequence

import (
	"math"

	"github.com/vetricore/autdhost/autderr"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/wire"
)

// PointSequence is an ordered list of focal points (at most
// PointSeqBufferSizeMax) together with the sample-clock divider the
// firmware replays them at, and the upload cursor.
type PointSequence struct {
	points        []geometry.Vector3
	sampleFreqDiv uint16
	sent          int
}

// NewPointSequence returns an empty PointSequence with the base
// sampling frequency divisor (div=1, i.e. PointSeqBaseFreq).
func NewPointSequence() *PointSequence {
	return &PointSequence{sampleFreqDiv: 1}
}

// AddPoint appends a single point, failing when the new total would
// exceed PointSeqBufferSizeMax.
func (p *PointSequence) AddPoint(pt geometry.Vector3) error {
	return p.AddPoints([]geometry.Vector3{pt})
}

// AddPoints appends points in bulk, failing atomically (no partial
// append) when the new total would exceed PointSeqBufferSizeMax.
func (p *PointSequence) AddPoints(pts []geometry.Vector3) error {
	if len(p.points)+len(pts) > wire.PointSeqBufferSizeMax {
		return autderr.New(autderr.InputValidation, "point sequence buffer overflow")
	}
	p.points = append(p.points, pts...)
	return nil
}

// Len returns the number of points currently buffered.
func (p *PointSequence) Len() int { return len(p.points) }

// Points returns the buffered points; callers must not mutate the slice.
func (p *PointSequence) Points() []geometry.Vector3 { return p.points }

// Sent returns how many points have been uploaded so far.
func (p *PointSequence) Sent() int { return p.sent }

// Remaining reports Len() - Sent().
func (p *PointSequence) Remaining() int { return len(p.points) - p.sent }

// Done reports whether the upload has completed (sent == len(points)).
func (p *PointSequence) Done() bool { return p.sent == len(p.points) }

// Advance moves the sent cursor forward by n points (clamped to Len).
func (p *PointSequence) Advance(n int) {
	p.sent += n
	if p.sent > len(p.points) {
		p.sent = len(p.points)
	}
}

// SamplingFreqDiv returns the currently stored sample-clock divisor.
func (p *PointSequence) SamplingFreqDiv() uint16 { return p.sampleFreqDiv }

// SamplingFreq returns the effective sampling frequency implied by the
// stored divisor: PointSeqBaseFreq / div.
func (p *PointSequence) SamplingFreq() float64 {
	return float64(wire.PointSeqBaseFreq) / float64(p.sampleFreqDiv)
}

// Freq returns the per-point replay frequency implied by the stored
// divisor and the current point count: SamplingFreq() / Len().
func (p *PointSequence) Freq() float64 {
	if len(p.points) == 0 {
		return 0
	}
	return p.SamplingFreq() / float64(len(p.points))
}

// SetFreq sets the per-point replay frequency as closely as the integer
// divisor allows and returns the actual achieved frequency:
//
//	sample_freq = N * freq
//	div         = floor(PointSeqBaseFreq / sample_freq)
//	lm_cycle    = N * div
//	if lm_cycle > PointSeqBaseFreq: div = floor(PointSeqBaseFreq / N)
//	actual      = PointSeqBaseFreq / div / N
func (p *PointSequence) SetFreq(freq float64) float64 {
	n := len(p.points)
	if n == 0 {
		return 0
	}
	sampleFreq := float64(n) * freq
	div := math.Floor(float64(wire.PointSeqBaseFreq) / sampleFreq)
	lmCycle := float64(n) * div
	if lmCycle > wire.PointSeqBaseFreq {
		div = math.Floor(float64(wire.PointSeqBaseFreq) / float64(n))
	}
	if div < 1 {
		div = 1
	}
	if div > 0xFFFF {
		div = 0xFFFF
	}
	p.sampleFreqDiv = uint16(div)
	return float64(wire.PointSeqBaseFreq) / div / float64(n)
}

// NextChunk returns up to PointSeqMaxPerChunk unsent points, for
// wire.PackPointChunk to encode, without advancing the cursor (callers
// advance only after a successful send).
func (p *PointSequence) NextChunk() []geometry.Vector3 {
	remaining := p.Remaining()
	if remaining <= 0 {
		return nil
	}
	n := remaining
	if n > wire.PointSeqMaxPerChunk {
		n = wire.PointSeqMaxPerChunk
	}
	return p.points[p.sent : p.sent+n]
}
