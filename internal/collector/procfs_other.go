//go:build !linux

package collector

import "errors"

func readInterrupts(string) (uint64, error) {
	return 0, errors.New("interrupt counter not supported on this platform")
}

func hwmonVcore(string) float64 { return 0 }

func hwmonFans(string) []uint32 { return []uint32{} }
