// Package pipeline implements the two ways a caller hands gains and
// modulations to Logic: PipelineAsync, which decouples gain/modulation
// building and sending onto their own goroutines connected by bounded
// channels, and PipelineSync, which does all three steps on the
// caller's goroutine.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/modulation"
)

// defaultQueueCapacity bounds each of PipelineAsync's channels so a
// fast producer backpressures instead of growing an unbounded queue;
// AppendGain/AppendModulation block when full.
const defaultQueueCapacity = 64

// PipelineAsync decouples gain/modulation compute from frame sending.
// Appending a gain or modulation hands it to a builder goroutine; the
// sender goroutine interleaves built gains and modulation chunks onto
// Logic: a lone gain sends alone, a lone modulation sends header-only
// chunks, and when both are queued one frame carries both.
type PipelineAsync struct {
	logic *logic.Logic
	geo   *geometry.Geometry
	log   *log.Logger

	gainIn     chan gain.Gain
	modIn      chan modulation.Source
	builtGains chan []gain.DriveArray
	builtMods  chan *modulation.Buffer

	running  atomic.Bool
	lastErr  atomic.Value // error
	modBuf   atomic.Value // *modulation.Buffer, nil-able via modBufHolder
	stopCh   chan struct{}
	stopOnce sync.Once

	wg sync.WaitGroup

	flushMu sync.Mutex
}

// New returns a PipelineAsync sending through l against geo, and
// starts its three worker goroutines.
func New(l *logic.Logic, geo *geometry.Geometry, logger *log.Logger) *PipelineAsync {
	if logger == nil {
		logger = log.Default()
	}
	p := &PipelineAsync{
		logic:      l,
		geo:        geo,
		log:        logger,
		gainIn:     make(chan gain.Gain, defaultQueueCapacity),
		modIn:      make(chan modulation.Source, defaultQueueCapacity),
		builtGains: make(chan []gain.DriveArray, defaultQueueCapacity),
		builtMods:  make(chan *modulation.Buffer, defaultQueueCapacity),
		stopCh:     make(chan struct{}),
	}
	p.running.Store(true)
	p.wg.Add(3)
	go p.gainBuilder()
	go p.modBuilder()
	go p.sender()
	return p
}

// AppendGain enqueues a gain for building and sending. It blocks if
// the build queue is full.
func (p *PipelineAsync) AppendGain(g gain.Gain) {
	if !p.running.Load() {
		return
	}
	select {
	case p.gainIn <- g:
	case <-p.stopCh:
	}
}

// AppendModulation enqueues a modulation source for building and
// sending. It blocks if the build queue is full.
func (p *PipelineAsync) AppendModulation(m modulation.Source) {
	if !p.running.Load() {
		return
	}
	select {
	case p.modIn <- m:
	case <-p.stopCh:
	}
}

// Err returns the error that stopped the pipeline, if any.
func (p *PipelineAsync) Err() error {
	v := p.lastErr.Load()
	if v == nil {
		return nil
	}
	return v.(error)
}

// Running reports whether the pipeline is still accepting and sending
// work.
func (p *PipelineAsync) Running() bool { return p.running.Load() }

// modBufHolder lets PipelineAsync publish a (possibly nil) *modulation.Buffer
// through an atomic.Value, which otherwise rejects storing differently-typed
// or nil values across calls.
type modBufHolder struct{ buf *modulation.Buffer }

// PendingModulationRemaining reports Len()-Sent() of the modulation chunk
// currently queued in the sender, or 0 if none is attached. Used by the
// Facade's remaining_in_buffer query.
func (p *PipelineAsync) PendingModulationRemaining() int {
	v, _ := p.modBuf.Load().(modBufHolder)
	if v.buf == nil {
		return 0
	}
	return v.buf.Remaining()
}

func (p *PipelineAsync) gainBuilder() {
	defer p.wg.Done()
	for {
		select {
		case g := <-p.gainIn:
			drives, err := g.Build(p.geo)
			if err != nil {
				p.fail(err)
				return
			}
			select {
			case p.builtGains <- drives:
			case <-p.stopCh:
				return
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *PipelineAsync) modBuilder() {
	defer p.wg.Done()
	for {
		select {
		case m := <-p.modIn:
			buf, err := m.Build(p.logic.ModSamplingFreq(), p.logic.ModBufSize())
			if err != nil {
				p.fail(err)
				return
			}
			select {
			case p.builtMods <- buf:
			case <-p.stopCh:
				return
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *PipelineAsync) sender() {
	defer p.wg.Done()
	var pendingGain []gain.DriveArray
	var pendingMod *modulation.Buffer
	haveGain := false

	for p.running.Load() {
		if !haveGain && pendingMod == nil {
			select {
			case g := <-p.builtGains:
				pendingGain = g
				haveGain = true
			case m := <-p.builtMods:
				pendingMod = m
				p.modBuf.Store(modBufHolder{buf: pendingMod})
			case <-p.stopCh:
				return
			}
			continue
		}

		// Drain any gain that's ready without blocking, so a
		// concurrently-built gain still pairs with this modulation
		// chunk in a single combined frame.
		if !haveGain {
			select {
			case g := <-p.builtGains:
				pendingGain = g
				haveGain = true
			default:
			}
		}

		var g []gain.DriveArray
		if haveGain {
			g = pendingGain
		}
		if _, err := p.logic.SendGainMod(g, pendingMod); err != nil {
			p.fail(err)
			return
		}
		haveGain = false
		pendingGain = nil

		if pendingMod != nil && pendingMod.Remaining() <= 0 {
			pendingMod.ResetSent()
			pendingMod = nil
			p.modBuf.Store(modBufHolder{buf: nil})
		}
	}
}

func (p *PipelineAsync) fail(err error) {
	p.log.Error("pipeline send failed, stopping", "err", err)
	p.lastErr.Store(err)
	p.running.Store(false)
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Flush drops all queued (not yet built, and built-but-unsent) work.
func (p *PipelineAsync) Flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	drainGains(p.gainIn)
	drainMods(p.modIn)
	drainBuiltGains(p.builtGains)
	drainBuiltMods(p.builtMods)
}

func drainGains(ch chan gain.Gain) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainMods(ch chan modulation.Source) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainBuiltGains(ch chan []gain.DriveArray) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainBuiltMods(ch chan *modulation.Buffer) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Close flushes pending work, stops accepting new work, and waits for
// all three worker goroutines to exit. Close is idempotent.
func (p *PipelineAsync) Close() {
	p.running.Store(false)
	p.Flush()
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
