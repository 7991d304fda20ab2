//go:build !linux

package collector

import "errors"

var errHealthUnsupported = errors.New("not supported on this platform")

func readEntropy(string) (uint32, error) { return 0, errHealthUnsupported }

func clockStatus() (float64, bool, error) { return 0, false, errHealthUnsupported }

func batteryStatus(string) string { return "" }
