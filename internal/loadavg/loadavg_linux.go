//go:build linux

package loadavg

import "golang.org/x/sys/unix"

// Get returns the 1/5/15 minute load averages, or ok=false if the kernel
// does not report them (mirrors the original's getloadavg/ENOSYS
// fallback).
func Get() (one, five, fifteen float64, ok bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, 0, false
	}
	// Sysinfo reports load in Linux's fixed-point scale (1 << SI_LOAD_SHIFT).
	const scale = 1 << 16
	return float64(info.Loads[0]) / scale,
		float64(info.Loads[1]) / scale,
		float64(info.Loads[2]) / scale,
		true
}
