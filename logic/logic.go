// Package logic implements the stateful orchestrator sitting between
// the Facade and a Transport: it tracks silent/sequence mode, owns the
// last-received acknowledgement buffer, and exposes the coarse
// send/clear/calibrate operations every pipeline and controller builds
// on.
package logic

import (
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vetricore/autdhost/autderr"
	"github.com/vetricore/autdhost/gain"
	"github.com/vetricore/autdhost/geometry"
	"github.com/vetricore/autdhost/modulation"
	"github.com/vetricore/autdhost/sequence"
	"github.com/vetricore/autdhost/transport"
	"github.com/vetricore/autdhost/wire"
)

// Config carries the modulation sampling parameters Logic needs to
// size its header chunks.
type Config struct {
	ModSamplingFreq int
	ModBufSize      int
}

// DefaultConfig returns the classic 4kHz/4000-sample pairing.
func DefaultConfig() Config {
	return Config{ModSamplingFreq: wire.ModSamplingFrequency, ModBufSize: wire.ModBufSizeDefault}
}

// Logic is the stateful orchestrator over a Transport and a fixed
// Geometry.
type Logic struct {
	geometry  *geometry.Geometry
	transport transport.Transport
	config    Config
	logger    *log.Logger

	silentMode bool
	seqMode    bool

	lastAck []byte
}

// New returns a Logic bound to geo and tr, with cfg governing
// modulation chunk sizing.
func New(geo *geometry.Geometry, tr transport.Transport, cfg Config, logger *log.Logger) *Logic {
	if logger == nil {
		logger = log.Default()
	}
	return &Logic{
		geometry:  geo,
		transport: tr,
		config:    cfg,
		logger:    logger,
		lastAck:   make([]byte, geo.NumDevices()*wire.InputFrameSize),
	}
}

// ModSamplingFreq returns the configured modulation sampling frequency.
func (l *Logic) ModSamplingFreq() int { return l.config.ModSamplingFreq }

// ModBufSize returns the configured modulation buffer size.
func (l *Logic) ModBufSize() int { return l.config.ModBufSize }

func (l *Logic) SilentMode() bool     { return l.silentMode }
func (l *Logic) SetSilentMode(v bool) { l.silentMode = v }
func (l *Logic) SeqMode() bool        { return l.seqMode }

func (l *Logic) fpgaFlags() wire.FPGAFlag {
	var f wire.FPGAFlag
	if l.silentMode {
		f |= wire.FPGASilent
	}
	return f
}

// SendGainMod builds and sends one frame carrying an optional gain and
// an optional modulation chunk, returning the message-id used. A
// non-nil gain clears sequence mode.
func (l *Logic) SendGainMod(g []gain.DriveArray, m *modulation.Buffer) (uint8, error) {
	if g != nil {
		l.seqMode = false
	}

	var cpu wire.CPUFlag
	modSize := 0
	if m != nil {
		modSize = m.Remaining()
		if modSize > wire.ModFrameSize {
			modSize = wire.ModFrameSize
		}
		sentBefore := m.Sent()
		if sentBefore == 0 {
			cpu |= wire.CPULoopBegin
		}
		if sentBefore+modSize == m.Len() {
			cpu |= wire.CPULoopEnd
		}
	}

	h := wire.MakeOpHeader(l.fpgaFlags(), cpu, uint8(modSize))
	if m != nil && modSize > 0 {
		copy(h.ModData[:modSize], m.Samples()[m.Sent():m.Sent()+modSize])
	}

	var frame []byte
	if g != nil {
		frame = wire.BuildGainFrame(h, gain.PackBodies(g))
	} else {
		frame = wire.BuildHeaderOnlyFrame(h)
	}

	if err := l.transport.Send(frame); err != nil {
		return 0, err
	}
	if m != nil && modSize > 0 {
		m.Advance(modSize)
	}
	return h.MsgID, nil
}

// SendGainModBlocking is SendGainMod followed by WaitMsgProcessed with
// the normal (short) trial budget.
func (l *Logic) SendGainModBlocking(g []gain.DriveArray, m *modulation.Buffer) error {
	msgID, err := l.SendGainMod(g, m)
	if err != nil {
		return err
	}
	ok, err := l.WaitMsgProcessed(msgID, 0xFF, shortTrials)
	if err != nil {
		return err
	}
	if !ok {
		return autderr.New(autderr.ProtocolTimeout, "send_gain_mod_blocking: devices did not echo in time")
	}
	return nil
}

const (
	shortTrials   = 200
	seqTermTrials = 2000
	// Reference-clock calibration restarts the slaves' internal PLL,
	// which takes far longer than an ordinary command to settle.
	calibTrials = 5000
)

// SendSeqBlocking uploads one PointSequence chunk. It sets seq mode,
// and on the terminal chunk (Done() after this send) waits under the
// longer trial budget for ack id 0xC0 under mask 0xE0; otherwise the
// normal short deadline.
func (l *Logic) SendSeqBlocking(seq *sequence.PointSequence) error {
	l.seqMode = true

	chunk := seq.NextChunk()

	n := l.geometry.NumDevices()
	body := make([]byte, wire.BodySize*n)
	pts := make([][3]float64, len(chunk))
	for d := 0; d < n; d++ {
		dev := l.geometry.Device(d)
		for i, p := range chunk {
			local := dev.ToLocal(p)
			pts[i] = [3]float64{local.X, local.Y, local.Z}
		}
		wire.PackPointChunk(body[d*wire.BodySize:(d+1)*wire.BodySize], pts)
	}

	var cpu wire.CPUFlag
	if seq.Sent() == 0 {
		cpu |= wire.CPUSeqBegin
	}
	isTerminal := seq.Sent()+len(chunk) == seq.Len()
	if isTerminal {
		cpu |= wire.CPUSeqEnd
	}

	h := wire.MakeSeqHeader(l.fpgaFlags()|wire.FPGASeqMode, cpu, uint16(len(chunk)), seq.SamplingFreqDiv())
	frame := make([]byte, wire.HeaderSize+len(body))
	h.Encode(frame[:wire.HeaderSize])
	copy(frame[wire.HeaderSize:], body)

	if err := l.transport.Send(frame); err != nil {
		return err
	}
	seq.Advance(len(chunk))

	if isTerminal {
		ok, err := l.WaitMsgProcessed(0xC0, 0xE0, seqTermTrials)
		if err != nil {
			return err
		}
		if !ok {
			return autderr.New(autderr.ProtocolTimeout, "send_seq_blocking: terminal chunk not acked")
		}
		return nil
	}
	ok, err := l.WaitMsgProcessed(h.MsgID, 0xFF, shortTrials)
	if err != nil {
		return err
	}
	if !ok {
		return autderr.New(autderr.ProtocolTimeout, "send_seq_blocking: chunk not acked")
	}
	return nil
}

// SendGainSeqBlocking uploads one GainSequence cycle, mirroring
// SendSeqBlocking's chunk-at-a-time shape: it sets seq mode, marks
// CPUSeqBegin on the first cycle and CPUSeqEnd on the last, and blocks
// for the ack under the same short/terminal trial budgets.
func (l *Logic) SendGainSeqBlocking(seq *sequence.GainSequence) error {
	l.seqMode = true

	cycles, err := seq.PackCycle(seq.SentCycles())
	if err != nil {
		return err
	}

	n := l.geometry.NumDevices()
	body := make([]byte, wire.BodySize*n)
	wire.PackGainBody(body, cycles)

	var cpu wire.CPUFlag
	if seq.SentCycles() == 0 {
		cpu |= wire.CPUSeqBegin
	}
	isTerminal := seq.SentCycles()+1 == seq.Cycles()
	if isTerminal {
		cpu |= wire.CPUSeqEnd
	}

	h := wire.MakeSeqHeader(l.fpgaFlags()|wire.FPGASeqMode, cpu, uint16(seq.Cycles()), seq.SamplingFreqDiv())
	frame := make([]byte, wire.HeaderSize+len(body))
	h.Encode(frame[:wire.HeaderSize])
	copy(frame[wire.HeaderSize:], body)

	if err := l.transport.Send(frame); err != nil {
		return err
	}
	seq.AdvanceCycles(1)

	if isTerminal {
		ok, err := l.WaitMsgProcessed(0xC0, 0xE0, seqTermTrials)
		if err != nil {
			return err
		}
		if !ok {
			return autderr.New(autderr.ProtocolTimeout, "send_gain_seq_blocking: terminal cycle not acked")
		}
		return nil
	}
	ok, err := l.WaitMsgProcessed(h.MsgID, 0xFF, shortTrials)
	if err != nil {
		return err
	}
	if !ok {
		return autderr.New(autderr.ProtocolTimeout, "send_gain_seq_blocking: cycle not acked")
	}
	return nil
}

// SendHeaderBlocking sends a header-only command frame and waits for
// its echo under maxTrials.
func (l *Logic) SendHeaderBlocking(cmd wire.Cmd, maxTrials int) error {
	h := wire.MakeCmdHeader(cmd)
	frame := wire.BuildHeaderOnlyFrame(h)
	if err := l.transport.Send(frame); err != nil {
		return err
	}
	ok, err := l.WaitMsgProcessed(h.MsgID, 0xFF, maxTrials)
	if err != nil {
		return err
	}
	if !ok {
		return autderr.New(autderr.ProtocolTimeout, "send_header_blocking: command not acked")
	}
	return nil
}

// Clear sends CmdClear and waits for its echo.
func (l *Logic) Clear() error {
	l.seqMode = false
	return l.SendHeaderBlocking(wire.CmdClear, shortTrials)
}

// Calibrate issues CmdInitRefClock (reference clock calibration).
func (l *Logic) Calibrate() error {
	return l.SendHeaderBlocking(wire.CmdInitRefClock, calibTrials)
}

// CalibrateSeq reads the slaves' STM-clock lap counts out of the last
// ack buffer, computes each device's lap-count diff from the minimum
// (with wrap-around correction above a 500-tick spread), and uploads
// the correction via CmdCalibSeqClock.
func (l *Logic) CalibrateSeq() error {
	n := l.geometry.NumDevices()
	laps := make([]uint16, n)
	minLap := uint16(0xFFFF)
	for d := 0; d < n; d++ {
		lo := l.lastAck[d*wire.InputFrameSize]
		hi := l.lastAck[d*wire.InputFrameSize+1]
		laps[d] = uint16(lo) | uint16(hi)<<8
		if laps[d] < minLap {
			minLap = laps[d]
		}
	}
	diffs := make([]uint16, n)
	maxDiff := uint16(0)
	for d := 0; d < n; d++ {
		diffs[d] = laps[d] - minLap
		if diffs[d] > maxDiff {
			maxDiff = diffs[d]
		}
	}
	if maxDiff > 500 {
		for d := 0; d < n; d++ {
			if diffs[d] < 500 {
				diffs[d] += 1000
			}
		}
	}

	body := make([]byte, wire.BodySize*n)
	for d := 0; d < n; d++ {
		off := d * wire.BodySize
		body[off] = byte(diffs[d])
		body[off+1] = byte(diffs[d] >> 8)
	}

	h := wire.MakeCmdHeader(wire.CmdCalibSeqClock)
	frame := make([]byte, wire.HeaderSize+len(body))
	h.Encode(frame[:wire.HeaderSize])
	copy(frame[wire.HeaderSize:], body)

	if err := l.transport.Send(frame); err != nil {
		return err
	}
	ok, err := l.WaitMsgProcessed(0xE0, 0xE0, seqTermTrials)
	if err != nil {
		return err
	}
	if !ok {
		return autderr.New(autderr.ProtocolTimeout, "calibrate_seq: clock calibration not acked")
	}
	return nil
}

// FirmwareVersions is one device's harvested CPU and FPGA version
// numbers.
type FirmwareVersions struct {
	CPU  uint16
	FPGA uint16
}

// FirmwareInfoList issues the four version-read commands and harvests
// ack byte 0 of each device into per-device CPU/FPGA version numbers.
func (l *Logic) FirmwareInfoList() ([]FirmwareVersions, error) {
	n := l.geometry.NumDevices()
	out := make([]FirmwareVersions, n)

	read := func(cmd wire.Cmd) ([]byte, error) {
		if err := l.SendHeaderBlocking(cmd, shortTrials); err != nil {
			return nil, err
		}
		bytes := make([]byte, n)
		for d := 0; d < n; d++ {
			bytes[d] = l.lastAck[d*wire.InputFrameSize]
		}
		return bytes, nil
	}

	cpuLsb, err := read(wire.CmdReadCPUVerLsb)
	if err != nil {
		return nil, err
	}
	cpuMsb, err := read(wire.CmdReadCPUVerMsb)
	if err != nil {
		return nil, err
	}
	fpgaLsb, err := read(wire.CmdReadFPGAVerLsb)
	if err != nil {
		return nil, err
	}
	fpgaMsb, err := read(wire.CmdReadFPGAVerMsb)
	if err != nil {
		return nil, err
	}
	for d := 0; d < n; d++ {
		out[d].CPU = uint16(cpuLsb[d]) | uint16(cpuMsb[d])<<8
		out[d].FPGA = uint16(fpgaLsb[d]) | uint16(fpgaMsb[d])<<8
	}
	return out, nil
}

// SetDelay composes a SetDelay body from one per-transducer delay
// array per device and blocks for echo.
func (l *Logic) SetDelay(delays [][wire.NumTransInUnit]uint16) error {
	n := l.geometry.NumDevices()
	if len(delays) != n {
		return autderr.New(autderr.InputValidation, "set_delay: device count mismatch")
	}
	body := make([]byte, wire.BodySize*n)
	wire.PackDelayBody(body, delays)

	h := wire.MakeCmdHeader(wire.CmdSetDelay)
	frame := make([]byte, wire.HeaderSize+len(body))
	h.Encode(frame[:wire.HeaderSize])
	copy(frame[wire.HeaderSize:], body)

	if err := l.transport.Send(frame); err != nil {
		return err
	}
	ok, err := l.WaitMsgProcessed(h.MsgID, 0xFF, shortTrials)
	if err != nil {
		return err
	}
	if !ok {
		return autderr.New(autderr.ProtocolTimeout, "set_delay: command not acked")
	}
	return nil
}

// WaitMsgProcessed repeatedly reads the ack buffer, counting devices
// whose (ack & mask) == msgID, returning true once every device
// matches or false once maxTrials is exhausted. Between trials it
// sleeps ceil(ECTrafficDelay*1000/ECDevicePerFrame*numDevices) ms,
// clamped to at least 1ms, so the poll rate scales with how long the
// bus needs to round-trip the array.
func (l *Logic) WaitMsgProcessed(msgID, mask byte, maxTrials int) (bool, error) {
	n := l.geometry.NumDevices()
	sleep := time.Duration(math.Ceil(wire.ECTrafficDelay*1000/wire.ECDevicePerFrame*float64(n))) * time.Millisecond
	if sleep < time.Millisecond {
		sleep = time.Millisecond
	}
	for trial := 0; trial < maxTrials; trial++ {
		if err := l.transport.Read(l.lastAck); err != nil {
			return false, err
		}
		if wire.CountMatching(l.lastAck, n, msgID, mask) == n {
			return true, nil
		}
		time.Sleep(sleep)
	}
	return false, nil
}

// SendRawFrame hands an already-built frame straight to the Transport,
// bypassing header construction. STMController uses this to replay its
// pre-built frame ring without Logic re-deriving a header per tick.
func (l *Logic) SendRawFrame(frame []byte) error {
	return l.transport.Send(frame)
}

// LastAck returns the most recently received raw acknowledgement
// buffer; callers must not mutate it.
func (l *Logic) LastAck() []byte { return l.lastAck }

// Close clears device state and closes the underlying Transport.
func (l *Logic) Close() error {
	if err := l.Clear(); err != nil {
		l.logger.Warn("clear before close failed", "err", err)
	}
	return l.transport.Close()
}
