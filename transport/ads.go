package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"

	"github.com/vetricore/autdhost/autderr"
)

// AmsNetId is a Beckhoff-style six-octet address identifying one side
// of an ADS connection.
type AmsNetId [6]byte

// ParseAmsNetId parses the conventional "a.b.c.d.e.f" dotted form.
func ParseAmsNetId(s string) (AmsNetId, error) {
	var id AmsNetId
	var parts [6]int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d.%d.%d",
		&parts[0], &parts[1], &parts[2], &parts[3], &parts[4], &parts[5])
	if err != nil || n != 6 {
		return id, autderr.Wrap(autderr.InputValidation, "parse AmsNetId", err)
	}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return id, autderr.New(autderr.InputValidation, "AmsNetId octet out of range")
		}
		id[i] = byte(p)
	}
	return id, nil
}

// AmsNetIdFromIPv4 derives the conventional NetId for a host known
// only by its IPv4 address: the four address octets followed by ".1.1".
func AmsNetIdFromIPv4(s string) (AmsNetId, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return AmsNetId{}, autderr.New(autderr.InputValidation, "not an IPv4 address")
	}
	v4 := ip.To4()
	return AmsNetId{v4[0], v4[1], v4[2], v4[3], 1, 1}, nil
}

// adsIndexGroup is the fixed index group the TwinCAT bridge exposes its
// device I/O map under.
const adsIndexGroup = 0x03040030

// adsWriteOffset and adsReadOffset are the fixed index offsets
// assigned to outbound frames and acknowledgement reads respectively.
const adsWriteOffset = 0x81000000
const adsReadOffset = 0x80000000

// AdsPort is the fixed AMS port the bridge process listens on.
const AdsPort = 301

// adsHeaderSize is the length-prefix plus index-group/offset/length
// header this transport prepends to every frame: 4 (AMS payload length)
// + 4 (index group) + 4 (index offset) + 4 (data length).
const adsHeaderSize = 16

// ADSTransport bridges Logic to a remote device over a TCP connection
// speaking a minimal ADS-flavoured length-prefixed protocol: every
// frame is an index-group/index-offset/length header followed by the
// raw wire frame. It is the portable alternative to EtherCATTransport
// for hosts without raw-socket access (e.g. TwinCAT-bridged setups):
// writes are fire-and-forget, reads issue an explicit request and
// block for the bridge's reply on a dedicated channel.
type ADSTransport struct {
	addr       string
	netID      AmsNetId
	numDevices int
	logger     *log.Logger

	// sessionID tags every log line for this connection attempt with a
	// short sortable id, so interleaved Open/Close cycles across
	// reconnects are distinguishable in a shared log stream.
	sessionID xid.ID

	conn   net.Conn
	closed atomic.Bool

	writeMu sync.Mutex

	ackCh  chan []byte
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewADSTransport returns a transport that will dial addr and address
// itself as netID once Open is called.
func NewADSTransport(addr string, netID AmsNetId, numDevices int) *ADSTransport {
	return &ADSTransport{addr: addr, netID: netID, numDevices: numDevices, logger: log.Default()}
}

// WithLogger overrides the logger ADSTransport reports session
// lifecycle events on.
func (t *ADSTransport) WithLogger(l *log.Logger) *ADSTransport {
	t.logger = l
	return t
}

func (t *ADSTransport) NumDevices() int { return t.numDevices }

func (t *ADSTransport) IsOpen() bool { return !t.closed.Load() && t.conn != nil }

// Open dials the remote bridge and starts the background reader.
func (t *ADSTransport) Open(ctx context.Context) error {
	if t.conn != nil {
		return ErrAlreadyOpen
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return autderr.Wrap(autderr.TransportOpen, "dial ADS bridge", err)
	}
	t.sessionID = xid.New()
	t.conn = conn
	t.ackCh = make(chan []byte, 1)
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.logger.Info("ads session opened", "session", t.sessionID.String(), "addr", t.addr, "net_id", t.netID)
	go t.readLoop()
	return nil
}

// Close closes the underlying connection and stops the reader. Close
// is idempotent.
func (t *ADSTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stopCh)
	err := t.conn.Close()
	<-t.doneCh
	t.logger.Info("ads session closed", "session", t.sessionID.String())
	return err
}

// Send wraps frame in an ADS-style index-group/offset/length header
// and writes it to the connection.
func (t *ADSTransport) Send(frame []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	out := make([]byte, adsHeaderSize+len(frame))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(frame)))
	binary.LittleEndian.PutUint32(out[4:8], adsIndexGroup)
	binary.LittleEndian.PutUint32(out[8:12], adsWriteOffset)
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(frame)))
	copy(out[adsHeaderSize:], frame)

	if _, err := t.conn.Write(out); err != nil {
		return autderr.Wrap(autderr.TransportIO, "ads send", err)
	}
	return nil
}

// Read issues a synchronous read request against adsReadOffset
// (mirroring AdsSyncReadReqEx2 against the ack index-group/offset
// pair) and blocks until the bridge's reply is delivered, then copies
// it into into.
func (t *ADSTransport) Read(into []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := t.sendReadRequest(len(into)); err != nil {
		return err
	}
	select {
	case frame, ok := <-t.ackCh:
		if !ok {
			return ErrClosed
		}
		copy(into, frame)
		return nil
	case <-t.stopCh:
		return ErrClosed
	}
}

// sendReadRequest writes a header-only ADS frame requesting n bytes
// from adsReadOffset.
func (t *ADSTransport) sendReadRequest(n int) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	hdr := make([]byte, adsHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], 0)
	binary.LittleEndian.PutUint32(hdr[4:8], adsIndexGroup)
	binary.LittleEndian.PutUint32(hdr[8:12], adsReadOffset)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(n))
	if _, err := t.conn.Write(hdr); err != nil {
		return autderr.Wrap(autderr.TransportIO, "ads read request", err)
	}
	return nil
}

func (t *ADSTransport) readLoop() {
	defer close(t.doneCh)
	defer close(t.ackCh)

	hdr := make([]byte, adsHeaderSize)
	for {
		if _, err := io.ReadFull(t.conn, hdr); err != nil {
			return
		}
		length := binary.LittleEndian.Uint32(hdr[12:16])
		payload := make([]byte, length)
		if _, err := io.ReadFull(t.conn, payload); err != nil {
			return
		}
		select {
		case t.ackCh <- payload:
		case <-t.stopCh:
			return
		}
	}
}
