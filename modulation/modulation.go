// Package modulation implements the amplitude-envelope data model and
// its parametric sources (sine, static). File-backed sources (WAV, CSV)
// live outside this module and feed the same Buffer type.
package modulation

import (
	"math"

	"github.com/vetricore/autdhost/autderr"
	"github.com/vetricore/autdhost/wire"
)

// Buffer is the built 8-bit-per-sample amplitude envelope plus its sent
// cursor.
type Buffer struct {
	samples []uint8
	sent    int
}

// Len returns the buffer length in samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Sent returns how many samples have been handed to a Transport so far.
func (b *Buffer) Sent() int { return b.sent }

// Samples returns the built samples; callers must not mutate the slice.
func (b *Buffer) Samples() []uint8 { return b.samples }

// Remaining reports Len() - Sent().
func (b *Buffer) Remaining() int { return b.Len() - b.sent }

// Advance moves the sent cursor forward by n samples (clamped to Len).
func (b *Buffer) Advance(n int) {
	b.sent += n
	if b.sent > len(b.samples) {
		b.sent = len(b.samples)
	}
}

// ResetSent rewinds the cursor to the start, used before a replay.
func (b *Buffer) ResetSent() { b.sent = 0 }

// Source computes a Buffer's samples from a parametric description. The
// bufSize argument is the configured modulation buffer size (see
// ModBufSizeDefault); Sine sizes its buffer from it, while Static
// ignores it and bounds-checks its own length against ModBufSizeMax.
type Source interface {
	Build(samplingFreq, bufSize int) (*Buffer, error)
}

// Static is a constant-amplitude modulation of a given sample count.
type Static struct {
	Amplitude float64
	Length    int
}

func (s Static) Build(samplingFreq, bufSize int) (*Buffer, error) {
	if s.Length <= 0 || s.Length > wire.ModBufSizeMax {
		return nil, autderr.New(autderr.InputValidation, "static modulation length out of range")
	}
	amp := clamp01(s.Amplitude)
	samples := make([]uint8, s.Length)
	v := uint8(math.Round(amp * 255))
	for i := range samples {
		samples[i] = v
	}
	return &Buffer{samples: samples}, nil
}

// Sine is a "sine" amplitude modulation source. Despite the name, the
// firmware envelope it builds is a folded triangle wave, not a
// sinusoid: the buffer holds one period of a ramp folded back into
// [0,1] and linearly mapped through offset/amplitude. The buffer
// length is the smallest sample count that holds a whole number of
// periods (freq=150Hz over a 4000Hz/4000-sample buffer gives
// gcd(4000,150)=50, 80 samples, 3 repetitions).
type Sine struct {
	Freq      float64
	Amplitude float64
	Offset    float64
}

// Build computes the envelope against the given sampling frequency and
// modulation buffer size (the classic pairing is ModBufSizeDefault for
// both).
func (s Sine) Build(samplingFreq, bufSize int) (*Buffer, error) {
	freq := int(math.Round(s.Freq))
	if freq <= 0 || samplingFreq <= 0 {
		return nil, autderr.New(autderr.InputValidation, "sine modulation frequency must be positive")
	}
	if freq > samplingFreq/2 {
		freq = samplingFreq / 2
	}
	if bufSize <= 0 || bufSize > wire.ModBufSizeMax {
		return nil, autderr.New(autderr.InputValidation, "sine modulation buffer size out of range")
	}
	if bufSize < samplingFreq {
		return nil, autderr.New(autderr.InputValidation, "sine modulation buffer holds less than one second of samples")
	}
	d := gcd(samplingFreq, freq)
	n := bufSize / d / (bufSize / samplingFreq)
	rep := freq / d
	if n <= 0 || n > wire.ModBufSizeMax {
		return nil, autderr.New(autderr.InputValidation, "sine modulation buffer exceeds MOD_BUF_SIZE")
	}
	samples := make([]uint8, n)
	for i := 0; i < n; i++ {
		tamp := math.Mod(2*float64(rep)*float64(i)/float64(n), 2.0)
		if tamp > 1.0 {
			tamp = 2.0 - tamp
		}
		tamp = clamp01(s.Offset + (tamp-0.5)*s.Amplitude)
		samples[i] = uint8(tamp * 255.0)
	}
	return &Buffer{samples: samples}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
