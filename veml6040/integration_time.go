package veml6040

import (
	"fmt"
	"time"
)

// IntegrationTime is one of the six exposure settings supported by the sensor,
// ordered from shortest to longest.
type IntegrationTime int

const (
	IntegrationTime40ms IntegrationTime = iota
	IntegrationTime80ms
	IntegrationTime160ms
	IntegrationTime320ms
	IntegrationTime640ms
	IntegrationTime1280ms
)

// DefaultIntegrationTime is applied when the auto-exposure controller starts.
const DefaultIntegrationTime = IntegrationTime160ms

// Conversion settling margin added on top of the integration time before reading
const waitMarginMillis = 40

var integrationTimes = [...]struct {
	millis      int
	sensitivity float64 // lux per green count
	bits        byte
}{
	IntegrationTime40ms:   {millis: 40, sensitivity: 0.25168, bits: 0x00},
	IntegrationTime80ms:   {millis: 80, sensitivity: 0.12584, bits: 0x10},
	IntegrationTime160ms:  {millis: 160, sensitivity: 0.06292, bits: 0x20},
	IntegrationTime320ms:  {millis: 320, sensitivity: 0.03146, bits: 0x30},
	IntegrationTime640ms:  {millis: 640, sensitivity: 0.01573, bits: 0x40},
	IntegrationTime1280ms: {millis: 1280, sensitivity: 0.007865, bits: 0x50},
}

// IntegrationTimes returns every setting, shortest first.
func IntegrationTimes() []IntegrationTime {
	all := make([]IntegrationTime, len(integrationTimes))
	for i := range all {
		all[i] = IntegrationTime(i)
	}
	return all
}

func (it IntegrationTime) Valid() bool {
	return it >= IntegrationTime40ms && it <= IntegrationTime1280ms
}

// Millis is the nominal integration duration in milliseconds.
func (it IntegrationTime) Millis() int {
	return integrationTimes[it].millis
}

// WaitMillis is the recommended wait between triggering a measurement and
// reading it back.
func (it IntegrationTime) WaitMillis() int {
	return it.Millis() + waitMarginMillis
}

func (it IntegrationTime) WaitTime() time.Duration {
	return time.Duration(it.WaitMillis()) * time.Millisecond
}

// Sensitivity is the brightness in lux represented by one green count at this
// integration time.
func (it IntegrationTime) Sensitivity() float64 {
	return integrationTimes[it].sensitivity
}

// BitPattern is the value of the integration time field in the config register.
func (it IntegrationTime) BitPattern() byte {
	return integrationTimes[it].bits
}

// Longer returns the next longer setting, or false at 1280ms.
func (it IntegrationTime) Longer() (IntegrationTime, bool) {
	if it >= IntegrationTime1280ms {
		return it, false
	}
	return it + 1, true
}

// Shorter returns the next shorter setting, or false at 40ms.
func (it IntegrationTime) Shorter() (IntegrationTime, bool) {
	if it <= IntegrationTime40ms {
		return it, false
	}
	return it - 1, true
}

func (it IntegrationTime) String() string {
	if !it.Valid() {
		return "Unknown"
	}
	return fmt.Sprintf("%dms", it.Millis())
}

// IntegrationTimeFromMillis looks up the setting with the given duration.
func IntegrationTimeFromMillis(millis int) (IntegrationTime, error) {
	for _, it := range IntegrationTimes() {
		if it.Millis() == millis {
			return it, nil
		}
	}
	return 0, fmt.Errorf("veml6040: unsupported integration time %dms", millis)
}

// integrationTimeFromBits decodes the integration time field of a config byte.
func integrationTimeFromBits(config byte) (IntegrationTime, bool) {
	bits := config & VEML6040_CONFIG_IT_MASK
	for _, it := range IntegrationTimes() {
		if it.BitPattern() == bits {
			return it, true
		}
	}
	return 0, false
}
