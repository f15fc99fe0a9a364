// Package autd is the composition root: it owns a Geometry, a
// Transport, a Logic, a PipelineAsync/PipelineSync pair and an
// STMController, and exposes the whole host-side operation set through
// one Facade type.
package autd

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vetricore/autdhost/firmware"
	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/metrics"
	"github.com/vetricore/autdhost/modulation"
	"github.com/vetricore/autdhost/pipeline"
	"github.com/vetricore/autdhost/sequence"
	"github.com/vetricore/autdhost/stm"
	"github.com/vetricore/autdhost/transport"
	"github.com/vetricore/autdhost/wire"
)

// Option configures a Facade at construction time.
type Option func(*Facade)

// WithMetrics registers c on every operation that records frame/ack/
// timeout counts. A nil Facade never touches c again after close.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Facade) { f.metrics = c }
}

// WithLogger overrides the default charmbracelet/log logger every
// subsystem is constructed with.
func WithLogger(l *log.Logger) Option {
	return func(f *Facade) { f.log = l }
}

// WithTimerFactory overrides the periodic-timer constructor
// STMController uses. Defaults to stm.NewLinuxTimer on linux and
// stm.NewGenericTimer elsewhere.
func WithTimerFactory(newTimer func() stm.PeriodicTimer) Option {
	return func(f *Facade) { f.newTimer = newTimer }
}

// Facade is the thin composition root user code drives directly.
type Facade struct {
	geo       *geometry.Geometry
	transport transport.Transport
	logic     *logic.Logic
	async     *pipeline.PipelineAsync
	sync      *pipeline.PipelineSync
	stmc      *stm.Controller

	metrics  *metrics.Collector
	log      *log.Logger
	newTimer func() stm.PeriodicTimer

	mu     sync.Mutex
	opened bool
	closed bool
}

// New returns an unopened Facade over geo and tr, configured by opts.
func New(geo *geometry.Geometry, tr transport.Transport, cfg logic.Config, opts ...Option) *Facade {
	f := &Facade{geo: geo, transport: tr}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = log.Default()
	}
	if f.newTimer == nil {
		f.newTimer = defaultTimerFactory
	}
	f.logic = logic.New(geo, tr, cfg, f.log)
	return f
}

// Open establishes the Transport link and starts the async pipeline
// and STM controller. Calling Open twice returns transport.ErrAlreadyOpen.
func (f *Facade) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened {
		return transport.ErrAlreadyOpen
	}
	if err := f.transport.Open(ctx); err != nil {
		return err
	}
	f.async = pipeline.New(f.logic, f.geo, f.log)
	f.sync = pipeline.NewSync(f.logic, f.geo)
	f.stmc = stm.NewController(f.logic, f.geo, f.newTimer, f.log)
	f.opened = true
	return nil
}

// IsOpen reports whether Open has succeeded and Close has not yet run.
func (f *Facade) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened && !f.closed
}

// SilentMode reports whether the SILENT FPGA flag is set on future
// frames.
func (f *Facade) SilentMode() bool { return f.logic.SilentMode() }

// SetSilentMode toggles the SILENT FPGA flag used on future frames.
func (f *Facade) SetSilentMode(v bool) { f.logic.SetSilentMode(v) }

// AppendGain enqueues g on the async pipeline.
func (f *Facade) AppendGain(g gain.Gain) {
	f.async.AppendGain(g)
	f.recordQueueDepth()
}

// AppendGainSync builds and sends g on the caller's goroutine.
func (f *Facade) AppendGainSync(g gain.Gain) error {
	err := f.sync.AppendGainSync(g)
	f.recordSend(err)
	return err
}

// AppendGainSyncWithWait is AppendGainSync followed by an explicit
// wait for every device's echo, surfacing an exhausted trial budget as
// a (false, nil) result rather than an error so the caller decides
// whether a slow array is fatal.
func (f *Facade) AppendGainSyncWithWait(g gain.Gain, maxTrials int) (bool, error) {
	drives, err := g.Build(f.geo)
	if err != nil {
		return false, err
	}
	msgID, err := f.logic.SendGainMod(drives, nil)
	if err != nil {
		f.recordSend(err)
		return false, err
	}
	ok, err := f.logic.WaitMsgProcessed(msgID, 0xFF, maxTrials)
	if err != nil {
		f.recordSend(err)
		return false, err
	}
	if f.metrics != nil {
		f.metrics.RecordFrameSent()
		if ok {
			f.metrics.RecordAckProcessed()
		} else {
			f.metrics.RecordWaitTimeout()
		}
	}
	return ok, nil
}

// AppendModulation enqueues m on the async pipeline.
func (f *Facade) AppendModulation(m modulation.Source) {
	f.async.AppendModulation(m)
	f.recordQueueDepth()
}

// AppendModulationSync builds m and blocks sending its chunks until
// fully sent.
func (f *Facade) AppendModulationSync(m modulation.Source) error {
	err := f.sync.AppendModulationSync(m)
	f.recordSend(err)
	return err
}

// AppendSequence uploads seq chunk by chunk and calibrates the
// sequence clock once fully sent.
func (f *Facade) AppendSequence(seq *sequence.PointSequence) error {
	err := f.sync.AppendSeq(seq)
	f.recordSend(err)
	return err
}

// AppendGainSequence uploads seq cycle by cycle and calibrates the
// sequence clock once fully sent.
func (f *Facade) AppendGainSequence(seq *sequence.GainSequence) error {
	err := f.sync.AppendGainSeq(seq)
	f.recordSend(err)
	return err
}

// AppendSTMGain appends a single gain to the STMController's replay
// list.
func (f *Facade) AppendSTMGain(g gain.Gain) {
	f.stmc.Add(g)
}

// AppendSTMGains appends every gain in gs, in order, to the
// STMController's replay list.
func (f *Facade) AppendSTMGains(gs []gain.Gain) {
	for _, g := range gs {
		f.stmc.Add(g)
	}
}

// StartSTM arms the STM replay timer at freq Hz.
func (f *Facade) StartSTM(freq float64) error {
	return f.stmc.Start(freq)
}

// StopSTM disarms the STM replay timer without clearing the gain list.
func (f *Facade) StopSTM() {
	f.stmc.Stop()
}

// FinishSTM stops the STM replay timer and clears its gain list.
func (f *Facade) FinishSTM() {
	f.stmc.Finish()
}

// SetDelay uploads one per-transducer delay array per device.
func (f *Facade) SetDelay(delays [][wire.NumTransInUnit]uint16) error {
	err := f.logic.SetDelay(delays)
	f.recordSend(err)
	return err
}

// Clear resets device state via CmdClear.
func (f *Facade) Clear() error {
	err := f.logic.Clear()
	f.recordSend(err)
	return err
}

// Calibrate issues reference-clock calibration.
func (f *Facade) Calibrate() error {
	err := f.logic.Calibrate()
	f.recordSend(err)
	return err
}

// FirmwareInfoList harvests each device's decoded CPU/FPGA firmware
// version strings.
func (f *Facade) FirmwareInfoList() ([]firmware.Info, error) {
	versions, err := f.logic.FirmwareInfoList()
	if err != nil {
		f.recordSend(err)
		return nil, err
	}
	out := make([]firmware.Info, len(versions))
	for i, v := range versions {
		out[i] = firmware.Info{Index: i, CPUVersion: v.CPU, FPGAVersion: v.FPGA}
	}
	return out, nil
}

// RemainingInBuffer reports the sample count still queued in the
// currently-attached modulation buffer: Len()-Sent(), or 0 if none is
// attached.
func (f *Facade) RemainingInBuffer() int {
	if f.async == nil {
		return 0
	}
	return f.async.PendingModulationRemaining()
}

// Close is idempotent: it stops the STM controller, drains the async
// pipeline, sends a null gain followed by clear so the transducers go
// quiet before the link drops, and closes the Transport.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if !f.opened {
		return nil
	}
	if f.stmc != nil {
		f.stmc.Finish()
	}
	if f.async != nil {
		f.async.Close()
	}
	_, _ = f.logic.SendGainMod(make([]gain.DriveArray, f.geo.NumDevices()), nil)
	return f.logic.Close()
}

func (f *Facade) recordSend(err error) {
	if f.metrics == nil {
		return
	}
	if err != nil {
		f.metrics.RecordSendError()
		return
	}
	f.metrics.RecordFrameSent()
}

func (f *Facade) recordQueueDepth() {
	if f.metrics == nil || f.async == nil {
		return
	}
	f.metrics.SetPipelineDepth(f.async.PendingModulationRemaining())
}
