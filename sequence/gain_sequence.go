package sequence

import (
	"github.com/vetricore/autdhost/autderr"
	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/wire"
)

// GainMode selects the per-transducer bit layout a GainSequence packs
// its gains into, and therefore how many gains one upload cycle
// carries: DutyPhaseFull packs one full
// 16-bit duty+phase drive per transducer per cycle; PhaseFull packs two
// 8-bit phase-only gains per cycle; PhaseHalf packs four 4-bit
// quarter-phase gains per cycle.
type GainMode int

const (
	DutyPhaseFull GainMode = iota
	PhaseFull
	PhaseHalf
)

// GainsPerCycle returns how many gains one upload cycle carries in this
// mode: 1, 2, or 4.
func (m GainMode) GainsPerCycle() int {
	switch m {
	case DutyPhaseFull:
		return 1
	case PhaseFull:
		return 2
	case PhaseHalf:
		return 4
	default:
		return 1
	}
}

// GainSequence is an ordered list of pre-built gains replayed by the
// firmware's hardware STM engine, packed per Mode.
type GainSequence struct {
	Mode   GainMode
	drives [][]gain.DriveArray // one []DriveArray per appended gain, each NumDevices long

	sampleFreqDiv uint16
	sentCycles    int
}

// NewGainSequence returns an empty GainSequence in the given mode, at
// the base sample-clock divider (div=1).
func NewGainSequence(mode GainMode) *GainSequence {
	return &GainSequence{Mode: mode, sampleFreqDiv: 1}
}

// SamplingFreqDiv returns the currently stored sample-clock divisor.
func (s *GainSequence) SamplingFreqDiv() uint16 { return s.sampleFreqDiv }

// SetSamplingFreqDiv sets the sample-clock divisor the firmware replays
// cycles at.
func (s *GainSequence) SetSamplingFreqDiv(div uint16) { s.sampleFreqDiv = div }

// SentCycles returns how many cycles have been uploaded so far.
func (s *GainSequence) SentCycles() int { return s.sentCycles }

// RemainingCycles reports Cycles() - SentCycles().
func (s *GainSequence) RemainingCycles() int { return s.Cycles() - s.sentCycles }

// Done reports whether every cycle has been uploaded.
func (s *GainSequence) Done() bool { return s.sentCycles == s.Cycles() }

// AdvanceCycles moves the sent-cycle cursor forward by n (clamped to
// Cycles()).
func (s *GainSequence) AdvanceCycles(n int) {
	s.sentCycles += n
	if s.sentCycles > s.Cycles() {
		s.sentCycles = s.Cycles()
	}
}

// Append adds one already-built gain's per-device DriveArrays.
func (s *GainSequence) Append(drives []gain.DriveArray) {
	s.drives = append(s.drives, drives)
}

// Len returns the number of appended gains.
func (s *GainSequence) Len() int { return len(s.drives) }

// Cycles returns the number of upload cycles the appended gains pack
// into, rounding up a partial final cycle.
func (s *GainSequence) Cycles() int {
	perCycle := s.Mode.GainsPerCycle()
	if len(s.drives) == 0 {
		return 0
	}
	return (len(s.drives) + perCycle - 1) / perCycle
}

// PackCycle packs cycle index c (0-based) into one uint16 word per
// transducer per device, per Mode's bit layout. It is an error to
// request a cycle beyond Cycles()-1.
func (s *GainSequence) PackCycle(c int) ([][wire.NumTransInUnit]uint16, error) {
	if c < 0 || c >= s.Cycles() {
		return nil, autderr.New(autderr.InputValidation, "gain sequence cycle index out of range")
	}
	perCycle := s.Mode.GainsPerCycle()
	start := c * perCycle
	end := start + perCycle
	if end > len(s.drives) {
		end = len(s.drives)
	}
	numDevices := len(s.drives[start])
	out := make([][wire.NumTransInUnit]uint16, numDevices)

	switch s.Mode {
	case DutyPhaseFull:
		for di := 0; di < numDevices; di++ {
			for ti := 0; ti < wire.NumTransInUnit; ti++ {
				out[di][ti] = uint16(s.drives[start][di][ti])
			}
		}
	case PhaseFull:
		for di := 0; di < numDevices; di++ {
			for ti := 0; ti < wire.NumTransInUnit; ti++ {
				var word uint16
				for k := start; k < end; k++ {
					phase := uint16(s.drives[k][di][ti].Phase())
					word |= phase << uint((k-start)*8)
				}
				out[di][ti] = word
			}
		}
	case PhaseHalf:
		for di := 0; di < numDevices; di++ {
			for ti := 0; ti < wire.NumTransInUnit; ti++ {
				var word uint16
				for k := start; k < end; k++ {
					quarter := uint16(s.drives[k][di][ti].Phase() >> 4)
					word |= quarter << uint((k-start)*4)
				}
				out[di][ti] = word
			}
		}
	}
	return out, nil
}
