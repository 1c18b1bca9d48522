package loadavg

import "testing"

func TestGetReturnsNonNegativeOrUnavailable(t *testing.T) {
	one, five, fifteen, ok := Get()
	if !ok {
		return
	}
	if one < 0 || five < 0 || fifteen < 0 {
		t.Errorf("negative load average: %v %v %v", one, five, fifteen)
	}
}
