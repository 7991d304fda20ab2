package metadata

import (
	"os"
	"path/filepath"
	"strings"
)

// machineIDPaths are tried in order; the first readable non-empty file wins.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

const dmiDir = "/sys/class/dmi/id"

// hypervisorVendors are lower-case substrings of DMI sys_vendor values
// reported by common hypervisors.
var hypervisorVendors = []string{
	"kvm",
	"qemu",
	"vmware",
	"virtualbox",
	"innotek",
	"xen",
	"microsoft corporation", // Hyper-V
	"parallels",
	"bochs",
	"amazon ec2",
	"google",
}

func trim(s string) string { return strings.TrimSpace(s) }

func readTrimmed(root, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		return "", err
	}
	return trim(string(data)), nil
}

func readMachineID(root string) string {
	for _, p := range machineIDPaths {
		if id, err := readTrimmed(root, p); err == nil && id != "" {
			return id
		}
	}
	return ""
}

// readDMI returns a DMI attribute, or "" when unreadable (product_serial is
// usually root-only).
func readDMI(root, name string) string {
	v, err := readTrimmed(root, filepath.Join(dmiDir, name))
	if err != nil {
		return ""
	}
	return v
}

// classifyVendor maps a DMI vendor string to a virtualization label.
func classifyVendor(vendor string) string {
	lower := strings.ToLower(vendor)
	if lower == "" {
		return Physical
	}
	for _, v := range hypervisorVendors {
		if strings.Contains(lower, v) {
			return "Virtual Machine from " + vendor
		}
	}
	return Physical
}

// readTimezone reads /etc/timezone, falling back to the zone name embedded
// in the /etc/localtime symlink target.
func readTimezone(root string) string {
	if tz, err := readTrimmed(root, "/etc/timezone"); err == nil && tz != "" {
		return tz
	}
	if target, err := os.Readlink(filepath.Join(root, "/etc/localtime")); err == nil {
		if zone := zoneFromPath(target); zone != "" {
			return zone
		}
	}
	return UnknownTimezone
}

func zoneFromPath(path string) string {
	const marker = "zoneinfo/"
	i := strings.Index(path, marker)
	if i < 0 {
		return ""
	}
	return path[i+len(marker):]
}

// readOSRelease returns PRETTY_NAME (or NAME VERSION_ID) from os-release.
func readOSRelease(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "/etc/os-release"))
	if err != nil {
		return ""
	}
	fields := parseKeyValueFile(string(data))
	if pretty := fields["PRETTY_NAME"]; pretty != "" {
		return pretty
	}
	return trim(fields["NAME"] + " " + fields["VERSION_ID"])
}

// parseKeyValueFile parses KEY=VALUE lines, stripping surrounding quotes.
func parseKeyValueFile(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if ok {
			fields[key] = strings.Trim(value, `"'`)
		}
	}
	return fields
}
