package stm

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vetricore/autdhost/autderr"
	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/logic"
	"github.com/vetricore/autdhost/wire"
)

// Controller owns a list of gains and a high-resolution periodic timer
// that, once started, replays each gain's pre-built frame in order at
// a fixed frequency.
type Controller struct {
	logic *logic.Logic
	geo   *geometry.Geometry
	log   *log.Logger

	mu     sync.Mutex
	gains  []gain.Gain
	timer  PeriodicTimer
	armed  bool
	frames [][]byte
	idx    int

	consecutiveFailures int
}

// maxConsecutiveSendFailures bounds how many ticks in a row may fail
// before the controller stops itself rather than spinning forever on
// a dead link.
const maxConsecutiveSendFailures = 3

// NewController returns a Controller over l and geo, using
// newTimer for its periodic callback (pass NewLinuxTimer or
// NewGenericTimer).
func NewController(l *logic.Logic, geo *geometry.Geometry, newTimer func() PeriodicTimer, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{logic: l, geo: geo, log: logger, timer: newTimer()}
}

// Add appends a gain to the replay list, stopping any running timer
// first.
func (c *Controller) Add(g gain.Gain) {
	c.stopTimer()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gains = append(c.gains, g)
}

// Start pre-builds every gain's frame against the current geometry and
// arms the timer with a tick interval of 1/(freq*len(gains)) seconds,
// one gain per tick, i.e. a full cycle through every gain happens freq
// times per second.
func (c *Controller) Start(freq float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.gains) == 0 {
		return autderr.New(autderr.StateMisuse, "start_stm: gain list is empty")
	}
	n := len(c.gains)
	interval := time.Duration(1e9 / freq / float64(n))

	// Silent-mode-derived flags are captured once at start; toggling
	// silent mode mid-replay does not retroactively rewrite the ring.
	var fpga wire.FPGAFlag
	if c.logic.SilentMode() {
		fpga |= wire.FPGASilent
	}
	frames := make([][]byte, n)
	for i, g := range c.gains {
		drives, err := g.Build(c.geo)
		if err != nil {
			return err
		}
		h := wire.MakeOpHeader(fpga, 0, 0)
		frames[i] = wire.BuildGainFrame(h, gain.PackBodies(drives))
	}
	c.frames = frames
	c.idx = 0
	c.consecutiveFailures = 0
	c.armed = true

	c.timer.Start(interval, c.tick)
	return nil
}

// tick sends the current frame and advances the cycle index. A single
// send failure logs and retries on the next tick; after
// maxConsecutiveSendFailures in a row it stops the timer rather than
// spinning indefinitely on a dead link.
func (c *Controller) tick() {
	c.mu.Lock()
	frames := c.frames
	if len(frames) == 0 {
		c.mu.Unlock()
		return
	}
	frame := frames[c.idx]
	c.idx = (c.idx + 1) % len(frames)
	c.mu.Unlock()

	if err := c.logic.SendRawFrame(frame); err != nil {
		c.mu.Lock()
		c.consecutiveFailures++
		failures := c.consecutiveFailures
		c.mu.Unlock()
		if failures >= maxConsecutiveSendFailures {
			c.log.Error("stm tick send failed repeatedly, stopping", "err", err, "failures", failures)
			c.mu.Lock()
			armed := c.armed
			c.armed = false
			c.frames = nil
			c.mu.Unlock()
			if armed {
				// timer.Stop joins the tick goroutine, so it must not
				// run inline from the callback itself.
				go c.timer.Stop()
			}
			return
		}
		c.log.Warn("stm tick send failed, will retry next tick", "err", err, "failures", failures)
		return
	}

	c.mu.Lock()
	c.consecutiveFailures = 0
	c.mu.Unlock()
}

// Stop disarms the timer; a callback already dispatched may still
// fire once.
func (c *Controller) Stop() {
	c.stopTimer()
}

// stopTimer takes ownership of the armed flag under the mutex, then
// joins the timer outside it: timer.Stop waits for any in-flight tick,
// and a tick takes the mutex, so joining under it would deadlock.
func (c *Controller) stopTimer() {
	c.mu.Lock()
	armed := c.armed
	c.armed = false
	c.frames = nil
	c.mu.Unlock()
	if armed {
		c.timer.Stop()
	}
}

// Finish stops the timer and clears the gain list.
func (c *Controller) Finish() {
	c.stopTimer()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gains = nil
}
