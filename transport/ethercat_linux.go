//go:build linux

package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/vetricore/autdhost/autderr"
	"github.com/vetricore/autdhost/wire"
)

// autdEtherType is the (non-IP) ethertype the fieldbus frames are
// carried under, raw over the wire the way real EtherCAT frames are:
// no IP/UDP framing, one Ethernet frame per cycle.
const autdEtherType = 0xA0B0

// ecFrameHeaderSize is the 14-byte Ethernet header (dst+src MAC,
// ethertype) prefixed to every frame this transport exchanges.
const ecFrameHeaderSize = 14

// ecTimeoutRetUS bounds how long one RT cycle waits for the slaves'
// reply frame before carrying the previous input state into the next
// cycle.
const ecTimeoutRetUS = 2000

// outputSlotSize is one device's share of the output map: its body
// followed by a copy of the shared header. Every device sees the same
// header; the bodies differ.
const outputSlotSize = wire.BodySize + wire.HeaderSize

// EtherCATTransport drives the fieldbus over a raw AF_PACKET socket on
// a single network interface, the way a user-space EtherCAT master
// owns the wire directly rather than going through the kernel's IP
// stack. It keeps two goroutines alive for its lifetime:
//
//   - an RT worker paced by a timerfd at the configured cycle
//     interval, which each tick writes the current output map to the
//     socket and drains the slaves' reply into the input map. A CAS
//     flag guards against tick reentry if a cycle overruns the period.
//   - a copy worker that drains one queued send buffer at a time into
//     the output map under the writer lock, then waits on an atomic
//     handshake flag until the RT worker has put the new payload on
//     the wire, so two queued sends can never collapse into one cycle.
type EtherCATTransport struct {
	ifaceIndex int
	numDevices int
	interval   time.Duration

	fd     int
	closed atomic.Bool

	logger *log.Logger

	// ioMu is the writer lock over the output map: held exclusively by
	// the copy worker while it installs a new payload, shared by the
	// RT worker while it snapshots the map onto the wire.
	ioMu   sync.RWMutex
	output []byte

	// sendPending is the handshake flag: raised by the copy worker
	// once a payload is installed, cleared by the RT worker after the
	// cycle that carries it.
	sendPending atomic.Bool

	// inCycle rejects a tick that fires while the previous cycle is
	// still on the socket.
	inCycle atomic.Bool

	ackMu   sync.Mutex
	ackCond *sync.Cond
	ack     []byte
	ackSeen bool

	sendCh   chan []byte
	stopCh   chan struct{}
	copyDone chan struct{}
	rtDone   chan struct{}

	timerFd int
}

// NewEtherCATTransport returns a transport bound to the network
// interface at ifaceIndex (see net.InterfaceByName(name).Index),
// exchanging frames with numDevices slaves at the given cycle
// interval.
func NewEtherCATTransport(ifaceIndex, numDevices int, interval time.Duration, logger *log.Logger) *EtherCATTransport {
	if logger == nil {
		logger = log.Default()
	}
	t := &EtherCATTransport{
		ifaceIndex: ifaceIndex,
		numDevices: numDevices,
		interval:   interval,
		fd:         -1,
		timerFd:    -1,
		logger:     logger,
	}
	t.ackCond = sync.NewCond(&t.ackMu)
	return t
}

func (t *EtherCATTransport) NumDevices() int { return t.numDevices }

func (t *EtherCATTransport) IsOpen() bool { return !t.closed.Load() && t.fd >= 0 }

// Open creates the raw socket, sizes the I/O map, arms the cycle
// timer, and starts the RT and copy workers. ctx bounds only socket
// setup.
func (t *EtherCATTransport) Open(ctx context.Context) error {
	if t.fd >= 0 {
		return ErrAlreadyOpen
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(autdEtherType)))
	if err != nil {
		return autderr.Wrap(autderr.TransportOpen, "open raw socket", err)
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(autdEtherType),
		Ifindex:  t.ifaceIndex,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return autderr.Wrap(autderr.TransportOpen, "bind raw socket to interface", err)
	}
	tv := unix.NsecToTimeval(int64(ecTimeoutRetUS) * 1000)
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return autderr.Wrap(autderr.TransportOpen, "set receive timeout", err)
	}

	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		unix.Close(fd)
		return autderr.Wrap(autderr.TransportOpen, "create cycle timer", err)
	}
	spec := &unix.ItimerSpec{
		Interval: unix.NsecToTimespec(t.interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(t.interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(tfd, 0, spec, nil); err != nil {
		unix.Close(tfd)
		unix.Close(fd)
		return autderr.Wrap(autderr.TransportOpen, "arm cycle timer", err)
	}

	select {
	case <-ctx.Done():
		unix.Close(tfd)
		unix.Close(fd)
		return autderr.Wrap(autderr.TransportOpen, "open cancelled", ctx.Err())
	default:
	}

	t.fd = fd
	t.timerFd = tfd
	t.closed.Store(false)
	t.output = make([]byte, outputSlotSize*t.numDevices)
	t.ack = make([]byte, t.numDevices*wire.InputFrameSize)
	t.ackSeen = false
	t.sendCh = make(chan []byte, 1)
	t.stopCh = make(chan struct{})
	t.copyDone = make(chan struct{})
	t.rtDone = make(chan struct{})
	go t.copyWorker()
	go t.rtWorker()
	t.logger.Info("ethercat link up", "ifindex", t.ifaceIndex, "devices", t.numDevices, "cycle", t.interval)
	return nil
}

// Close flips the open flag, wakes and joins the copy worker, zeroes
// the output map so the slaves stop driving their transducers, puts
// one final cycle with the zeroed map on the wire, then tears down
// the timer and socket. Close is idempotent.
func (t *EtherCATTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stopCh)
	<-t.copyDone

	t.ioMu.Lock()
	for i := range t.output {
		t.output[i] = 0
	}
	t.ioMu.Unlock()
	t.writeCycle()

	// The RT worker wakes at the next periodic expiry, observes the
	// closed flag, and exits; only then is the timerfd safe to close
	// (closing it under a blocked read would not wake the reader).
	<-t.rtDone
	tfd := t.timerFd
	t.timerFd = -1
	unix.Close(tfd)

	fd := t.fd
	t.fd = -1
	err := unix.Close(fd)

	t.ackMu.Lock()
	t.ackCond.Broadcast()
	t.ackMu.Unlock()
	t.logger.Info("ethercat link down", "ifindex", t.ifaceIndex)
	return err
}

// Send queues one frame (header, optionally followed by per-device
// bodies) for the copy worker. Submission order is preserved; the
// queue holds one payload besides the one the copy worker is waiting
// to put on the wire, and the call blocks while that slot is taken.
func (t *EtherCATTransport) Send(frame []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	buf := append([]byte(nil), frame...)
	select {
	case t.sendCh <- buf:
		return nil
	case <-t.stopCh:
		return ErrClosed
	}
}

// Read blocks until at least one cycle has brought back slave input,
// then copies the latest per-device acknowledgement bytes into into.
func (t *EtherCATTransport) Read(into []byte) error {
	t.ackMu.Lock()
	defer t.ackMu.Unlock()
	for !t.ackSeen && !t.closed.Load() {
		t.ackCond.Wait()
	}
	if !t.ackSeen {
		return ErrClosed
	}
	copy(into, t.ack)
	return nil
}

// copyWorker installs queued send buffers into the output map one at
// a time, holding the next payload back until the RT worker has put
// the current one on the wire.
func (t *EtherCATTransport) copyWorker() {
	defer close(t.copyDone)
	for {
		select {
		case frame := <-t.sendCh:
			t.installFrame(frame)
			t.sendPending.Store(true)
			for t.sendPending.Load() && !t.closed.Load() {
				time.Sleep(50 * time.Microsecond)
			}
		case <-t.stopCh:
			return
		}
	}
}

// installFrame lays one logical frame out into the per-device output
// slots: each device gets its own body (when present) followed by a
// copy of the shared header.
func (t *EtherCATTransport) installFrame(frame []byte) {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()
	hasBody := len(frame) > wire.HeaderSize
	for d := 0; d < t.numDevices; d++ {
		slot := t.output[d*outputSlotSize : (d+1)*outputSlotSize]
		if hasBody {
			copy(slot[:wire.BodySize], frame[wire.HeaderSize+d*wire.BodySize:])
		}
		copy(slot[wire.BodySize:], frame[:wire.HeaderSize])
	}
}

// rtWorker is the fixed-period exchange loop: each timer expiry it
// snapshots the output map onto the wire and drains the slaves' reply
// into the input map.
func (t *EtherCATTransport) rtWorker() {
	defer close(t.rtDone)
	expiries := make([]byte, 8)
	for {
		n, err := unix.Read(t.timerFd, expiries)
		if err != nil || n != 8 {
			return
		}
		if t.closed.Load() {
			return
		}
		t.cycle()
	}
}

// cycle performs one send/receive exchange. The CAS guard drops a
// tick that fires while the previous exchange is still on the socket
// rather than queueing it up.
func (t *EtherCATTransport) cycle() {
	if !t.inCycle.CompareAndSwap(false, true) {
		return
	}
	defer t.inCycle.Store(false)

	// Sample the handshake flag before writing: if it was raised, the
	// copy worker's payload was fully installed before this cycle's
	// snapshot, so the write below carries it.
	pending := t.sendPending.Load()
	if !t.writeCycle() {
		return
	}
	if pending {
		t.sendPending.Store(false)
	}
	t.readCycle()
}

// writeCycle puts the current output map on the wire as one raw
// Ethernet frame. Returns false on a write error (the next tick
// retries).
func (t *EtherCATTransport) writeCycle() bool {
	t.ioMu.RLock()
	out := make([]byte, ecFrameHeaderSize+len(t.output))
	binary.BigEndian.PutUint16(out[12:14], autdEtherType)
	copy(out[ecFrameHeaderSize:], t.output)
	t.ioMu.RUnlock()

	if _, err := unix.Write(t.fd, out); err != nil {
		if !t.closed.Load() {
			t.logger.Warn("ethercat cycle write failed", "err", err)
		}
		return false
	}
	return true
}

// readCycle waits up to the receive timeout for the slaves' reply
// frame and copies its input bytes into the acknowledgement buffer.
func (t *EtherCATTransport) readCycle() {
	buf := make([]byte, ecFrameHeaderSize+len(t.ack)+64)
	n, _, err := unix.Recvfrom(t.fd, buf, 0)
	if err != nil {
		// EAGAIN from SO_RCVTIMEO just means no reply this cycle.
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK && !t.closed.Load() {
			t.logger.Warn("ethercat cycle read failed", "err", err)
		}
		return
	}
	if n <= ecFrameHeaderSize {
		return
	}
	t.ackMu.Lock()
	copy(t.ack, buf[ecFrameHeaderSize:n])
	t.ackSeen = true
	t.ackCond.Broadcast()
	t.ackMu.Unlock()
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | (v>>8)&0x00ff
}
