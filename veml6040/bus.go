package veml6040

import (
	"fmt"

	"golang.org/x/exp/io/i2c"
)

// Bus is the register transport to a single device at a fixed address.
//
// Write sends buf as one transaction, register address first.
// ReadReg writes the register address then reads len(buf) bytes back.
// *i2c.Device from golang.org/x/exp/io/i2c satisfies it directly.
type Bus interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

var _ Bus = (*i2c.Device)(nil)

// OpenDevfs opens the VEML6040 through the Linux i2c-dev interface.
func OpenDevfs(path string) (Bus, error) {
	if path == "" {
		// i2c-1 is the default I2C bus for the Raspberry Pi
		path = "/dev/i2c-1"
	}
	device, err := i2c.Open(&i2c.Devfs{Dev: path}, int(VEML6040_ADDR))
	if err != nil {
		return nil, fmt.Errorf("Failed to open %s: %w", path, err)
	}
	return device, nil
}
