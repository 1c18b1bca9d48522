//go:build !linux

package loadavg

// Get reports that load averages are unavailable on this platform, the
// same path the original takes on a system lacking getloadavg().
func Get() (one, five, fifteen float64, ok bool) {
	return 0, 0, 0, false
}
