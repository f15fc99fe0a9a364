package wire

import "encoding/binary"

// Header is the fixed 128-byte prefix of every frame sent to the slaves:
// a message-id byte, an FPGA flags byte, a byte that doubles as either a
// command code or the CPU flags bitfield depending on frame type, a
// modulation chunk-size byte, a two-byte sequence count, a two-byte
// sequence divisor, and 120 bytes of modulation payload.
//
// The command/CPU-flags byte does double duty because the two frame
// kinds never coexist: a command-type frame (Clear, InitRefClock, ...)
// carries the Cmd code there, with MsgID set equal to that code so the
// slave's echo yields a distinguishable value; an Op-type frame (a
// normal gain/modulation send) carries the CPUFlag bitfield there
// instead, with MsgID drawn from the message-id ring.
type Header struct {
	MsgID     uint8
	FPGAFlags FPGAFlag
	// Byte2 is the Cmd code for command-type frames, or the CPUFlag
	// bitfield for Op-type frames. Use Command()/CPUFlags() to read it
	// typed.
	Byte2   uint8
	ModSize uint8
	SeqSize uint16
	SeqDiv  uint16
	ModData [ModFrameSize]byte
}

// Command reinterprets Byte2 as a command code.
func (h *Header) Command() Cmd { return Cmd(h.Byte2) }

// CPUFlags reinterprets Byte2 as the CPU flags bitfield.
func (h *Header) CPUFlags() CPUFlag { return CPUFlag(h.Byte2) }

// MakeCmdHeader builds a header-only administrative frame. MsgID is set
// equal to the command code, so the slave's echo in the ack byte is
// distinguishable from an in-flight Op message-id.
func MakeCmdHeader(cmd Cmd) *Header {
	return &Header{
		MsgID: uint8(cmd),
		Byte2: uint8(cmd),
	}
}

// MakeOpHeader builds a normal gain/modulation frame header and advances
// the process-wide message-id ring.
func MakeOpHeader(fpga FPGAFlag, cpu CPUFlag, modSize uint8) *Header {
	return &Header{
		MsgID:     NextMessageID(),
		FPGAFlags: fpga,
		Byte2:     uint8(cpu),
		ModSize:   modSize,
	}
}

// MakeSeqHeader builds a point- or gain-sequence upload header. It is a
// variant of MakeOpHeader that additionally carries the sequence chunk
// count and sample divisor.
func MakeSeqHeader(fpga FPGAFlag, cpu CPUFlag, seqSize uint16, seqDiv uint16) *Header {
	h := MakeOpHeader(fpga, cpu, 0)
	h.SeqSize = seqSize
	h.SeqDiv = seqDiv
	return h
}

// Encode serializes the header into the first HeaderSize bytes of dst,
// which must be at least HeaderSize long.
func (h *Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = h.MsgID
	dst[1] = uint8(h.FPGAFlags)
	dst[2] = h.Byte2
	dst[3] = h.ModSize
	binary.LittleEndian.PutUint16(dst[4:6], h.SeqSize)
	binary.LittleEndian.PutUint16(dst[6:8], h.SeqDiv)
	copy(dst[8:HeaderSize], h.ModData[:h.ModSize])
}

// DecodeHeader parses the first HeaderSize bytes of src into a Header.
// Bytes past ModSize within the modulation area are preserved as read
// (typically zero-padded) so round-tripping a sent buffer is exact.
func DecodeHeader(src []byte) *Header {
	_ = src[HeaderSize-1]
	h := &Header{
		MsgID:     src[0],
		FPGAFlags: FPGAFlag(src[1]),
		Byte2:     src[2],
		ModSize:   src[3],
		SeqSize:   binary.LittleEndian.Uint16(src[4:6]),
		SeqDiv:    binary.LittleEndian.Uint16(src[6:8]),
	}
	copy(h.ModData[:], src[8:HeaderSize])
	return h
}
