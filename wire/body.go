package wire

import (
	"encoding/binary"
	"math"
)

// PackGainBody concatenates each device's 249 little-endian u16 drive
// values after the header. dst must be at least BodySize*len(devices)
// bytes.
func PackGainBody(dst []byte, devices [][NumTransInUnit]uint16) {
	for i, drives := range devices {
		off := i * BodySize
		for j, d := range drives {
			binary.LittleEndian.PutUint16(dst[off+j*2:off+j*2+2], d)
		}
	}
}

// pointFixedUnit is the fixed-point LSB used by the point-sequence wire
// encoding: UltrasoundWavelength/256.
const pointFixedUnit = UltrasoundWavelength / 256.0

// encodeFixed118 rounds a millimetre coordinate to the nearest multiple of
// pointFixedUnit and returns the result as a signed, little-endian 3-byte
// (1.17 format) field.
func encodeFixed118(coordMM float64) [3]byte {
	fixed := int32(math.Round(coordMM / pointFixedUnit))
	var b [3]byte
	b[0] = byte(fixed)
	b[1] = byte(fixed >> 8)
	b[2] = byte(fixed >> 16)
	return b
}

// PointSeqAmplitudeByte is the fixed amplitude byte appended after each
// point's 9 coordinate bytes.
const PointSeqAmplitudeByte = 0xFF

// PackPointChunk packs up to PointSeqMaxPerChunk points (x, y, z in
// millimetres) for one device into dst, which must be at least
// len(points)*10 bytes. Returns the number of bytes written.
func PackPointChunk(dst []byte, points [][3]float64) int {
	n := 0
	for _, p := range points {
		xb := encodeFixed118(p[0])
		yb := encodeFixed118(p[1])
		zb := encodeFixed118(p[2])
		copy(dst[n:n+3], xb[:])
		copy(dst[n+3:n+6], yb[:])
		copy(dst[n+6:n+9], zb[:])
		dst[n+9] = PointSeqAmplitudeByte
		n += 10
	}
	return n
}

// PointChunkBytes reports the wire size of n points.
func PointChunkBytes(n int) int { return n * 10 }

// PackDelayBody concatenates each device's 249 little-endian u16 delay
// samples, used by the SetDelay command body.
func PackDelayBody(dst []byte, delays [][NumTransInUnit]uint16) {
	PackGainBody(dst, delays)
}
