package firmware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionStringMatchesWorkedTable(t *testing.T) {
	require.Equal(t, "older than v0.4", VersionString(0))
	require.Equal(t, "v0.4", VersionString(0x01))
	require.Equal(t, "v0.9", VersionString(0x06))
	require.Equal(t, "v1.0", VersionString(0x0A))
	require.Equal(t, "v1.11", VersionString(0x15))
	require.Equal(t, "emulator", VersionString(0xFF))
	require.Equal(t, "unknown: 200", VersionString(200))
}
