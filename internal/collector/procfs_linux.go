//go:build linux

package collector

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// readInterrupts returns the total interrupt count from /proc/stat.
// gopsutil does not expose it.
func readInterrupts(root string) (uint64, error) {
	fs, err := procfs.NewFS(filepath.Join(root, procfs.DefaultMountPoint))
	if err != nil {
		return 0, err
	}
	stat, err := fs.Stat()
	if err != nil {
		return 0, err
	}
	if stat.IRQTotal == 0 {
		return 0, errors.New("no interrupt total in /proc/stat")
	}
	return stat.IRQTotal, nil
}

// The hwmon readers below stay on plain file reads: procfs has no API for
// in*_label/in*_input voltages or fan*_input.

// hwmonDirs lists /sys/class/hwmon/hwmon* in name order.
func hwmonDirs(root string) []string {
	dirs, _ := filepath.Glob(filepath.Join(root, "/sys/class/hwmon/hwmon*"))
	sort.Strings(dirs)
	return dirs
}

func readSysfs(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// hwmonVcore returns the core voltage in volts from the first in*_input
// whose label is "Vcore", or 0.
func hwmonVcore(root string) float64 {
	for _, dir := range hwmonDirs(root) {
		labels, _ := filepath.Glob(filepath.Join(dir, "in*_label"))
		sort.Strings(labels)
		for _, labelPath := range labels {
			label, err := readSysfs(labelPath)
			if err != nil || !strings.EqualFold(label, "Vcore") {
				continue
			}
			raw, err := readSysfs(strings.TrimSuffix(labelPath, "_label") + "_input")
			if err != nil {
				continue
			}
			mv, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			return mv / 1000
		}
	}
	return 0
}

// hwmonFans returns every fan*_input reading in RPM.
func hwmonFans(root string) []uint32 {
	fans := []uint32{}
	for _, dir := range hwmonDirs(root) {
		inputs, _ := filepath.Glob(filepath.Join(dir, "fan*_input"))
		sort.Strings(inputs)
		for _, p := range inputs {
			raw, err := readSysfs(p)
			if err != nil {
				continue
			}
			rpm, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				continue
			}
			fans = append(fans, uint32(rpm))
		}
	}
	return fans
}
