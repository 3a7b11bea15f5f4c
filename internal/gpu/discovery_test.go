package gpu

import (
	"path/filepath"
	"testing"

	"github.com/jaypipes/pcidb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNames(t *testing.T) *Names {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("testdata", "pci.ids"))
	require.NoError(t, err)
	names, err := LoadNames(pcidb.WithDirectPath(path))
	require.NoError(t, err)
	return names
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	devices, err := Discover(filepath.Join("testdata", "sysfs"), testNames(t), discardLogger())
	require.NoError(t, err)
	require.Len(t, devices, 3, "non-display devices must be filtered out")

	assert.Equal(t, Device{
		Address:  "0000:03:00.0",
		VendorID: "1a03",
		DeviceID: "2000",
		Vendor:   "ASPEED Technology, Inc.",
		Name:     "ASPEED Graphics Family",
		Driver:   "ast",
	}, devices[0])
	assert.False(t, devices[0].IsNVIDIA())

	assert.Equal(t, "0000:3b:00.0", devices[1].Address)
	assert.Equal(t, "TU104GL [Tesla T4]", devices[1].Name)
	assert.Equal(t, "NVIDIA Corporation", devices[1].Vendor)
	assert.Equal(t, "nvidia", devices[1].Driver)
	assert.True(t, devices[1].IsNVIDIA())

	assert.Equal(t, "0000:af:00.0", devices[2].Address)
	assert.Equal(t, "A100-SXM4-40GB", devices[2].Name, "subsystem name should win")
}

func TestDiscoverWithoutNameDatabase(t *testing.T) {
	t.Parallel()

	devices, err := Discover(filepath.Join("testdata", "sysfs"), &Names{}, discardLogger())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	for _, device := range devices {
		assert.Empty(t, device.Name)
		assert.NotEmpty(t, device.VendorID)
	}
}

func TestDiscoverMissingPCITree(t *testing.T) {
	t.Parallel()

	devices, err := Discover(t.TempDir(), nil, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := Discover(filepath.Join(t.TempDir(), "absent"), nil, discardLogger())
	assert.Error(t, err)
}

func TestNamesProductFallsBackToDevice(t *testing.T) {
	t.Parallel()

	names := testNames(t)
	assert.Equal(t, "TU104GL [Tesla T4]", names.Product("0x10de", "0x1eb8", "", ""))
	assert.Equal(t, "TU104GL [Tesla T4]", names.Product("10de", "1eb8", "1028", "0000"))
	assert.Empty(t, names.Product("10de", "ffff", "", ""))
	assert.Empty(t, names.Product("", "1eb8", "", ""))
}

func TestNormalizePCIID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10de", normalizePCIID("0x10DE"))
	assert.Equal(t, "00ab", normalizePCIID("ab"))
	assert.Equal(t, "", normalizePCIID("  "))
}
