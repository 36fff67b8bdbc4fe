// hioload-reactor/internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
//
// Pinning of the calling goroutine's OS thread to one CPU.

package concurrency

import "runtime"

// PinCurrentThread locks the calling goroutine to its OS thread and, where the
// platform supports it, restricts that thread to cpuID. The goroutine stays locked
// even if setting the affinity fails.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	return platformPinCurrentThread(cpuID)
}

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}
