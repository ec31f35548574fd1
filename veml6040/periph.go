package veml6040

import (
	"fmt"

	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphBus adapts a periph.io I2C bus to the Bus interface.
type PeriphBus struct {
	dev *periphi2c.Dev
	bus periphi2c.BusCloser
}

// OpenPeriph initializes the periph.io host drivers and opens the named bus.
// An empty name selects the first available bus.
func OpenPeriph(name string) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("Failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("Failed to open I2C bus %q: %w", name, err)
	}
	return &PeriphBus{
		dev: &periphi2c.Dev{Addr: VEML6040_ADDR, Bus: bus},
		bus: bus,
	}, nil
}

func (p *PeriphBus) Write(buf []byte) error {
	return p.dev.Tx(buf, nil)
}

func (p *PeriphBus) ReadReg(reg byte, buf []byte) error {
	return p.dev.Tx([]byte{reg}, buf)
}

func (p *PeriphBus) Close() error {
	return p.bus.Close()
}
