// Package serialio opens the physical modem line. It is treated as an
// opaque boundary service per spec.md: "open a byte-duplex line at a
// given speed", with UUCP-style device locking left to the operating
// system and the device driver.
package serialio

import (
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Open opens the serial device at the given path and baud rate, returning
// an io.ReadWriter the modem channel can drive directly.
func Open(device string, baud int) (*serial.Port, error) {
	cfg := &serial.Config{Name: device, Baud: baud}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial device %s at %d baud", device, baud)
	}
	return p, nil
}
