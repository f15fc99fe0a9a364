package pipeline

import (
	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/modulation"
	"github.com/vetricore/autdhost/sequence"
)

// PipelineSync runs build and send on the caller's goroutine, for
// callers that want the simplicity of a blocking call over
// PipelineAsync's concurrency.
type PipelineSync struct {
	logic *logic.Logic
	geo   *geometry.Geometry
}

// NewSync returns a PipelineSync sending through l against geo.
func NewSync(l *logic.Logic, geo *geometry.Geometry) *PipelineSync {
	return &PipelineSync{logic: l, geo: geo}
}

// AppendGainSync builds g and sends it alone (no modulation chunk).
func (p *PipelineSync) AppendGainSync(g gain.Gain) error {
	drives, err := g.Build(p.geo)
	if err != nil {
		return err
	}
	_, err = p.logic.SendGainMod(drives, nil)
	return err
}

// AppendModulationSync builds m, then blocks sending its chunks until
// every sample has been sent.
func (p *PipelineSync) AppendModulationSync(m modulation.Source) error {
	buf, err := m.Build(p.logic.ModSamplingFreq(), p.logic.ModBufSize())
	if err != nil {
		return err
	}
	for buf.Sent() < buf.Len() {
		if err := p.logic.SendGainModBlocking(nil, buf); err != nil {
			return err
		}
	}
	return nil
}

// AppendSeq uploads seq chunk by chunk until fully sent, then
// calibrates the sequence clock.
func (p *PipelineSync) AppendSeq(seq *sequence.PointSequence) error {
	for !seq.Done() {
		if err := p.logic.SendSeqBlocking(seq); err != nil {
			return err
		}
	}
	return p.logic.CalibrateSeq()
}

// AppendGainSeq uploads seq cycle by cycle until fully sent, then
// calibrates the sequence clock.
func (p *PipelineSync) AppendGainSeq(seq *sequence.GainSequence) error {
	for !seq.Done() {
		if err := p.logic.SendGainSeqBlocking(seq); err != nil {
			return err
		}
	}
	return p.logic.CalibrateSeq()
}
