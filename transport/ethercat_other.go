//go:build !linux

package transport

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vetricore/autdhost/autderr"
)

// ErrUnsupportedPlatform is returned by EtherCATTransport.Open on any
// platform other than Linux: the raw AF_PACKET socket the real
// implementation needs is a Linux-only facility, and a user-space
// EtherCAT master is in practice a Linux-only real-time component.
var ErrUnsupportedPlatform = autderr.New(autderr.TransportOpen, "EtherCATTransport requires linux")

// EtherCATTransport is a non-functional stand-in on non-Linux builds
// so the package still compiles; Open, Send and Read return
// ErrUnsupportedPlatform, Close is a no-op and IsOpen always reports
// false.
type EtherCATTransport struct {
	numDevices int
}

// NewEtherCATTransport returns a transport that always fails to open
// on this platform. The logger and interval arguments are accepted
// for call-site parity with the Linux constructor but otherwise
// unused.
func NewEtherCATTransport(ifaceIndex, numDevices int, interval time.Duration, logger *log.Logger) *EtherCATTransport {
	return &EtherCATTransport{numDevices: numDevices}
}

func (t *EtherCATTransport) Open(ctx context.Context) error { return ErrUnsupportedPlatform }
func (t *EtherCATTransport) Close() error                   { return nil }
func (t *EtherCATTransport) Send(frame []byte) error        { return ErrUnsupportedPlatform }
func (t *EtherCATTransport) Read(into []byte) error         { return ErrUnsupportedPlatform }
func (t *EtherCATTransport) IsOpen() bool                   { return false }
func (t *EtherCATTransport) NumDevices() int                { return t.numDevices }
