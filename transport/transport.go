// Package transport implements the two link-layer backends Logic can
// drive: a raw-socket EtherCAT-like fieldbus transport (Linux-only) and
// a length-prefixed ADS/TwinCAT TCP bridge transport. Both share the
// Transport interface so Logic never branches on which one is in use.
package transport

import (
	"context"

	"github.com/vetricore/autdhost/autderr"
)

// Transport is the link-layer abstraction Logic sends frames through
// and reads acknowledgements back from. Implementations must be safe
// for one writer and one reader goroutine to use concurrently; they
// need not support concurrent writers or concurrent readers.
type Transport interface {
	// Open establishes the underlying link. ctx bounds connection setup
	// only, not the transport's lifetime.
	Open(ctx context.Context) error
	// Close tears the link down. Close is idempotent.
	Close() error
	// Send writes one full frame (header, optionally followed by a
	// body) to the link.
	Send(frame []byte) error
	// Read fills into with the most recently received acknowledgement
	// frame, blocking until one is available or the transport closes.
	Read(into []byte) error
	// IsOpen reports whether Open has succeeded and Close has not yet
	// run.
	IsOpen() bool
	// NumDevices reports the slave/device count the transport is wired
	// to exchange frames with.
	NumDevices() int
}

var ErrClosed = autderr.New(autderr.TransportIO, "transport is closed")
var ErrAlreadyOpen = autderr.New(autderr.StateMisuse, "transport is already open")
