//go:build linux

package collector

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	"golang.org/x/sys/unix"
)

// Clock status bits from <linux/timex.h>.
const (
	staUnsync = 0x0040
	staNano   = 0x2000
)

func readEntropy(root string) (uint32, error) {
	fs, err := procfs.NewFS(filepath.Join(root, procfs.DefaultMountPoint))
	if err != nil {
		return 0, err
	}
	random, err := fs.KernelRandom()
	if err != nil {
		return 0, err
	}
	if random.EntropyAvaliable == nil {
		return 0, errors.New("entropy_avail not available")
	}
	return uint32(*random.EntropyAvaliable), nil
}

// clockStatus reads the kernel clock discipline state: the current NTP
// offset in milliseconds and whether the clock is synchronised.
func clockStatus() (float64, bool, error) {
	var tx unix.Timex
	if _, err := unix.Adjtimex(&tx); err != nil {
		return 0, false, err
	}
	offset := float64(tx.Offset)
	if tx.Status&staNano != 0 {
		offset /= 1e6
	} else {
		offset /= 1e3
	}
	return offset, tx.Status&staUnsync == 0, nil
}

// batteryStatus returns the status of the first battery in the power_supply
// class, or "" when there is none.
func batteryStatus(root string) string {
	fs, err := sysfs.NewFS(filepath.Join(root, sysfs.DefaultMountPoint))
	if err != nil {
		return ""
	}
	supplies, err := fs.PowerSupplyClass()
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(supplies))
	for name := range supplies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ps := supplies[name]; strings.EqualFold(ps.Type, "Battery") && ps.Status != "" {
			return ps.Status
		}
	}
	return ""
}
