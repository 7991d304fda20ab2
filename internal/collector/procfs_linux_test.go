//go:build linux

package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestReadInterrupts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "/proc/stat",
		"cpu  100 0 50 1000 5 0 1 0 0 0\nintr 987654 12 0 3\nctxt 4242\n")

	n, err := readInterrupts(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(987654), n)
}

func TestReadInterruptsMissingLine(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "/proc/stat", "cpu  100 0 50 1000 5 0 1 0 0 0\nctxt 4242\n")
	_, err := readInterrupts(root)
	assert.Error(t, err)
}

func TestHwmon(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "/sys/class/hwmon/hwmon0/in0_label", "VIN1\n")
	writeFile(t, root, "/sys/class/hwmon/hwmon0/in0_input", "3300\n")
	writeFile(t, root, "/sys/class/hwmon/hwmon0/in1_label", "Vcore\n")
	writeFile(t, root, "/sys/class/hwmon/hwmon0/in1_input", "1125\n")
	writeFile(t, root, "/sys/class/hwmon/hwmon0/fan1_input", "1200\n")
	writeFile(t, root, "/sys/class/hwmon/hwmon1/fan1_input", "850\n")
	writeFile(t, root, "/sys/class/hwmon/hwmon1/fan2_input", "garbage\n")

	assert.InDelta(t, 1.125, hwmonVcore(root), 1e-9)
	assert.Equal(t, []uint32{1200, 850}, hwmonFans(root))
}

func TestHwmonAbsent(t *testing.T) {
	root := t.TempDir()
	assert.Zero(t, hwmonVcore(root))
	assert.Equal(t, []uint32{}, hwmonFans(root))
}

func TestHealthFromRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "/proc/sys/kernel/random/entropy_avail", "256\n")
	writeFile(t, root, "/sys/class/power_supply/AC/type", "Mains\n")
	writeFile(t, root, "/sys/class/power_supply/BAT0/type", "Battery\n")
	writeFile(t, root, "/sys/class/power_supply/BAT0/status", "Discharging\n")

	n, err := readEntropy(root)
	require.NoError(t, err)
	assert.Equal(t, uint32(256), n)
	assert.Equal(t, "Discharging", batteryStatus(root))
	assert.Equal(t, "", batteryStatus(t.TempDir()))
}
