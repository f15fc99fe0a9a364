// Package firmware decodes the single-byte CPU/FPGA version numbers
// Logic.FirmwareInfoList harvests into human-readable release strings.
package firmware

import "fmt"

var versionTable = buildVersionTable()

func buildVersionTable() map[uint8]string {
	t := map[uint8]string{
		0:    "older than v0.4",
		0x80: "v2.0",
		0xFF: "emulator",
	}
	for v := uint8(0x01); v <= 0x06; v++ {
		t[v] = fmt.Sprintf("v0.%d", v+3)
	}
	for v := uint8(0x0A); v <= 0x15; v++ {
		t[v] = fmt.Sprintf("v1.%d", v-0x0A)
	}
	return t
}

// VersionString maps a raw one-byte CPU or FPGA version number to its
// human-readable firmware version string.
func VersionString(n uint8) string {
	if s, ok := versionTable[n]; ok {
		return s
	}
	return fmt.Sprintf("unknown: %d", n)
}

// Info is one device's decoded firmware versions.
type Info struct {
	Index       int
	CPUVersion  uint16
	FPGAVersion uint16
}

// CPUVersionString returns the decoded CPU firmware version string;
// only the low byte of CPUVersion carries the release number.
func (i Info) CPUVersionString() string { return VersionString(uint8(i.CPUVersion)) }

// FPGAVersionString returns the decoded FPGA firmware version string.
func (i Info) FPGAVersionString() string { return VersionString(uint8(i.FPGAVersion)) }

func (i Info) String() string {
	return fmt.Sprintf("%d: CPU = %s, FPGA = %s", i.Index, i.CPUVersionString(), i.FPGAVersionString())
}
