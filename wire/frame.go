package wire

// FrameSize returns the total wire size of a frame carrying numDevices
// device bodies. hasBody must be false for a header-only frame.
func FrameSize(numDevices int, hasBody bool) int {
	if !hasBody {
		return HeaderSize
	}
	return HeaderSize + BodySize*numDevices
}

// BuildGainFrame serializes a header plus the gain bodies for every
// device into a single contiguous buffer ready to hand to a Transport.
func BuildGainFrame(h *Header, devices [][NumTransInUnit]uint16) []byte {
	buf := make([]byte, FrameSize(len(devices), true))
	h.Encode(buf)
	PackGainBody(buf[HeaderSize:], devices)
	return buf
}

// BuildHeaderOnlyFrame serializes just the header, used for command
// frames and modulation-only/no-op Op frames.
func BuildHeaderOnlyFrame(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	return buf
}
