// +build linux

package receiver

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinToCore locks the calling goroutine to its current OS thread and pins
// that thread to coreID. Go has no portable core-pinning API; this is the
// Linux-only escape hatch for the optional core_affinity setting, guarded
// by a build tag the same way the teacher guards tcpraw/linux-only
// behavior in server/listen_linux.go.
func PinToCore(coreID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	return unix.SchedSetaffinity(0, &set)
}
