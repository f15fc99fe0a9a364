package transport

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAmsNetId(t *testing.T) {
	id, err := ParseAmsNetId("192.168.1.1.1.1")
	require.NoError(t, err)
	require.Equal(t, AmsNetId{192, 168, 1, 1, 1, 1}, id)

	_, err = ParseAmsNetId("not-a-net-id")
	require.Error(t, err)

	_, err = ParseAmsNetId("300.0.0.0.0.0")
	require.Error(t, err)
}

func TestAmsNetIdFromIPv4AppendsConventionalSuffix(t *testing.T) {
	id, err := AmsNetIdFromIPv4("192.168.0.10")
	require.NoError(t, err)
	require.Equal(t, AmsNetId{192, 168, 0, 10, 1, 1}, id)

	_, err = AmsNetIdFromIPv4("fe80::1")
	require.Error(t, err)
}

func TestADSTransportSendReceivesEchoedFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		hdr := make([]byte, adsHeaderSize)
		if _, err := conn.Read(hdr); err != nil {
			return
		}
		length := binary.LittleEndian.Uint32(hdr[12:16])
		payload := make([]byte, length)
		n := 0
		for n < int(length) {
			m, err := conn.Read(payload[n:])
			if err != nil {
				return
			}
			n += m
		}
		// Echo the payload straight back with the same header shape.
		conn.Write(hdr)
		conn.Write(payload)
	}()

	tr := NewADSTransport(ln.Addr().String(), AmsNetId{1, 2, 3, 4, 5, 6}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close()

	frame := []byte{0xAA, 0xBB, 0xCC}
	require.NoError(t, tr.Send(frame))

	got := make([]byte, len(frame))
	require.NoError(t, tr.Read(got))
	require.Equal(t, frame, got)

	<-serverDone
}
