// Package wire implements the on-the-wire frame layout shared by every
// Transport: header packing, gain-body packing, point-sequence body
// packing, acknowledgement unpacking, and the message-id ring.
package wire

const (
	// TransducerSize is the pitch between adjacent transducers, in
	// millimetres.
	TransducerSize = 10.16
	// NumTransX is the transducer grid width.
	NumTransX = 18
	// NumTransY is the transducer grid height.
	NumTransY = 14
	// NumTransInUnit is the transducer count per device (18*14 minus the
	// three fixed missing grid positions).
	NumTransInUnit = 249

	// UltrasoundFrequency is the carrier frequency in Hz.
	UltrasoundFrequency = 40000
	// ModSamplingFrequency is the default modulation sample rate in Hz.
	ModSamplingFrequency = 4000
	// ModBufSizeMax is the largest modulation buffer the wire format and
	// firmware accept.
	ModBufSizeMax = 65536
	// ModBufSizeDefault is the classic default modulation buffer size /
	// sampling frequency pairing: a 4kHz sampling frequency over a
	// 4000-sample buffer yields exactly one second of envelope.
	ModBufSizeDefault = 4000
	// ModFrameSize is the modulation bytes carried per header chunk.
	ModFrameSize = 120

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 128
	// BodySize is the per-device gain body length in bytes (249 * 2).
	BodySize = NumTransInUnit * 2
	// InputFrameSize is the per-device acknowledgement length in bytes.
	InputFrameSize = 2

	// ECDevicePerFrame is used to derive the EtherCAT traffic delay.
	ECDevicePerFrame = 2
	// ECSpeedBPS is the nominal EtherCAT link speed.
	ECSpeedBPS = 100_000_000
	// ECTrafficDelay is the wire time of one device's full frame in
	// seconds, used by wait_msg_processed's inter-trial sleep formula.
	ECTrafficDelay = (HeaderSize + BodySize + InputFrameSize) * 8.0 / ECSpeedBPS

	// PointSeqBufferSizeMax is the largest PointSequence the firmware
	// accepts.
	PointSeqBufferSizeMax = 40000
	// PointSeqBaseFreq is the base sampling frequency PointSequence
	// divides down from.
	PointSeqBaseFreq = 40000
	// PointSeqBaseIntervalUS is 1e6 / PointSeqBaseFreq.
	PointSeqBaseIntervalUS = 25
	// PointSeqMaxPerChunk is the largest number of points a single
	// upload chunk may carry per device.
	PointSeqMaxPerChunk = 40

	// UltrasoundWavelength is derived from the speed of sound in air
	// (~340 m/s) at 40kHz, expressed in millimetres, matching the
	// original implementation's fixed-point point-sequence encoding.
	UltrasoundWavelength = 340000.0 / UltrasoundFrequency

	// MsgIDMin and MsgIDMax bound the message-id ring.
	MsgIDMin = 0x20
	MsgIDMax = 0xBF
)

// FPGAFlag is a bitfield carried in the header's fpga_flag byte.
type FPGAFlag uint8

const (
	FPGASilent        FPGAFlag = 1 << 3
	FPGAForceFan      FPGAFlag = 1 << 4
	FPGASeqMode       FPGAFlag = 1 << 5
	FPGAOutputEnable  FPGAFlag = 1 << 6
	FPGAOutputBalance FPGAFlag = 1 << 7
)

// CPUFlag is a bitfield carried in the header's cpu flags byte.
type CPUFlag uint8

const (
	CPULoopBegin     CPUFlag = 1 << 0
	CPULoopEnd       CPUFlag = 1 << 1
	CPUSeqBegin      CPUFlag = 1 << 2
	CPUSeqEnd        CPUFlag = 1 << 3
	CPUReadsFPGAInfo CPUFlag = 1 << 4
	CPUDelayOffset   CPUFlag = 1 << 5
	CPUWriteBody     CPUFlag = 1 << 6
)

// The firmware treats a modulation chunk and a loop segment as the same
// thing, so the MOD_* names alias the LOOP_* bits.
const (
	CPUModBegin = CPULoopBegin
	CPUModEnd   = CPULoopEnd
)

// Cmd is a command code occupying the disjoint [0x00, 0x0A] range.
type Cmd uint8

const (
	CmdOp             Cmd = 0x00
	CmdReadCPUVerLsb  Cmd = 0x02
	CmdReadCPUVerMsb  Cmd = 0x03
	CmdReadFPGAVerLsb Cmd = 0x04
	CmdReadFPGAVerMsb Cmd = 0x05
	CmdSeqMode        Cmd = 0x06
	CmdInitRefClock   Cmd = 0x07
	CmdCalibSeqClock  Cmd = 0x08
	CmdClear          Cmd = 0x09
	CmdSetDelay       Cmd = 0x0A
)
