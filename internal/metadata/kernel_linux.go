//go:build linux

package metadata

import (
	"context"

	"golang.org/x/sys/unix"
)

func kernelVersion(_ context.Context) (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Release[:]), nil
}
