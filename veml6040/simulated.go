package veml6040

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Relative response of each channel to the ambient light level, green = 1.
var simulatedResponse = map[byte]float64{
	VEML6040_REGISTER_R_DATA: 0.8,
	VEML6040_REGISTER_G_DATA: 1.0,
	VEML6040_REGISTER_B_DATA: 0.6,
	VEML6040_REGISTER_W_DATA: 1.5,
}

// SimulatedBus behaves like a VEML6040 under a fixed ambient light level.
// Counts are latched when a measurement is triggered, using the integration
// time in the config register at that moment.
type SimulatedBus struct {
	mu      sync.Mutex
	lux     float64
	latched map[byte]uint16
	closed  bool
}

func NewSimulatedBus(lux float64) *SimulatedBus {
	return &SimulatedBus{lux: lux, latched: map[byte]uint16{}}
}

// SetLux changes the ambient light level for later measurements.
func (s *SimulatedBus) SetLux(lux float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lux = lux
}

func (s *SimulatedBus) Write(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("simulated bus: closed")
	}
	if len(buf) != 3 || buf[0] != VEML6040_REGISTER_CONFIG {
		return fmt.Errorf("simulated bus: unexpected write % x", buf)
	}
	// a trigger, or any write while in auto mode, starts a new measurement
	if config := buf[1]; config&VEML6040_CONFIG_TRIG != 0 || config&VEML6040_CONFIG_AF == 0 {
		s.latch(config)
	}
	return nil
}

func (s *SimulatedBus) ReadReg(reg byte, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("simulated bus: closed")
	}
	if _, ok := simulatedResponse[reg]; !ok || len(buf) != 2 {
		return fmt.Errorf("simulated bus: unexpected read of register 0x%02x", reg)
	}
	binary.LittleEndian.PutUint16(buf, s.latched[reg])
	return nil
}

func (s *SimulatedBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *SimulatedBus) latch(config byte) {
	if config&VEML6040_CONFIG_SD != 0 {
		return
	}
	it, ok := integrationTimeFromBits(config)
	if !ok {
		return
	}
	for reg, response := range simulatedResponse {
		counts := math.Round(s.lux * response / it.Sensitivity())
		s.latched[reg] = uint16(math.Max(0, math.Min(counts, math.MaxUint16)))
	}
}
