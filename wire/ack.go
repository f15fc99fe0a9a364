package wire

// AckByte extracts device d's acknowledgement byte (the echoed message-id)
// from the raw per-device input bytes.
func AckByte(raw []byte, device int) byte {
	return raw[device*InputFrameSize+1]
}

// AckMatches reports whether the given device's ack byte, masked by mask,
// equals msgID masked the same way.
func AckMatches(raw []byte, device int, msgID, mask byte) bool {
	return AckByte(raw, device)&mask == msgID&mask
}

// CountMatching returns how many of numDevices devices have an ack byte
// matching msgID under mask, used by Logic.WaitMsgProcessed.
func CountMatching(raw []byte, numDevices int, msgID, mask byte) int {
	n := 0
	for d := 0; d < numDevices; d++ {
		if AckMatches(raw, d, msgID, mask) {
			n++
		}
	}
	return n
}
