package veml6040

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRead wraps any bus failure during an absolute measurement.
	ErrRead = errors.New("veml6040: failed to read sensor")

	// The reading is too dark, a longer integration time has been applied for the next one.
	ErrTooDarkRelative = errors.New("veml6040: too dark, integration time increased")
	// The reading is too bright, a shorter integration time has been applied for the next one.
	ErrTooBrightRelative = errors.New("veml6040: too bright, integration time decreased")
	// The reading is too dark and there is no longer integration time left.
	ErrTooDarkAbsolute = errors.New("veml6040: too dark for the longest integration time")
	// The reading is too bright and there is no shorter integration time left.
	ErrTooBrightAbsolute = errors.New("veml6040: too bright for the shortest integration time")
)

// IsRelative reports whether err is an exposure failure that a retry at the
// adjusted integration time may fix.
func IsRelative(err error) bool {
	return errors.Is(err, ErrTooDarkRelative) || errors.Is(err, ErrTooBrightRelative)
}

// IsAbsolute reports whether err means the light level is outside the range
// the sensor can represent.
func IsAbsolute(err error) bool {
	return errors.Is(err, ErrTooDarkAbsolute) || errors.Is(err, ErrTooBrightAbsolute)
}

// AbsoluteMeasurement is a measurement of all channels converted to lux.
type AbsoluteMeasurement struct {
	Red             float64
	Green           float64
	Blue            float64
	White           float64
	IntegrationTime IntegrationTime // setting the measurement was acquired with
}

// Lux is the ambient light level, derived from the green channel.
func (m AbsoluteMeasurement) Lux() float64 {
	return m.Green
}

// AutoVEML6040 wraps a sensor to take absolute measurements, selecting a
// suitable integration time automatically. Not safe for concurrent use.
type AutoVEML6040 struct {
	sensor          *VEML6040
	integrationTime IntegrationTime
	sleep           func(time.Duration)
}

// NewAutoVEML6040 enables the sensor, applies the default integration time
// and switches it to manual mode, so measurements only happen on request.
func NewAutoVEML6040(sensor *VEML6040) (*AutoVEML6040, error) {
	a := &AutoVEML6040{
		sensor:          sensor,
		integrationTime: DefaultIntegrationTime,
		sleep:           time.Sleep,
	}
	if err := a.sensor.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable sensor: %w", err)
	}
	if err := a.sensor.SetIntegrationTime(a.integrationTime); err != nil {
		return nil, fmt.Errorf("failed to set integration time: %w", err)
	}
	if err := a.sensor.SetMeasurementMode(MeasurementModeManual); err != nil {
		return nil, fmt.Errorf("failed to set measurement mode: %w", err)
	}
	return a, nil
}

// IntegrationTime is the setting the next measurement will use.
func (a *AutoVEML6040) IntegrationTime() IntegrationTime {
	return a.integrationTime
}

func (a *AutoVEML6040) Sensor() *VEML6040 {
	return a.sensor
}

// SetSleep replaces the wait between triggering a measurement and reading it.
// A simulated bus latches its counts immediately and needs no wait.
func (a *AutoVEML6040) SetSleep(sleep func(time.Duration)) {
	if sleep == nil {
		sleep = time.Sleep
	}
	a.sleep = sleep
}

// ReadAbsoluteOnce takes a single measurement. When the green count is outside
// the soft thresholds the integration time is moved one step, so the next
// measurement is better exposed, even if this one is returned successfully.
func (a *AutoVEML6040) ReadAbsoluteOnce() (AbsoluteMeasurement, error) {
	if err := a.sensor.TriggerMeasurement(); err != nil {
		return AbsoluteMeasurement{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	a.sleep(a.integrationTime.WaitTime())
	raw, err := a.sensor.ReadAllChannels()
	if err != nil {
		return AbsoluteMeasurement{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	green := raw.Green

	next, adjust := a.integrationTime, false
	if green < VEML6040_DARK_THRESHOLD_SOFT {
		next, adjust = a.integrationTime.Longer()
	} else if green > VEML6040_BRIGHT_THRESHOLD_SOFT {
		next, adjust = a.integrationTime.Shorter()
	}

	// sensitivity of the setting the counts were acquired with
	acquired := a.integrationTime
	sensitivity := acquired.Sensitivity()

	if adjust {
		a.integrationTime = next
		l.Debugf("Switching to integration time %v...", a.integrationTime)
		if err := a.sensor.SetIntegrationTime(a.integrationTime); err != nil {
			return AbsoluteMeasurement{}, fmt.Errorf("%w: %w", ErrRead, err)
		}
	}

	switch {
	case green < VEML6040_DARK_THRESHOLD_HARD:
		if !adjust {
			return AbsoluteMeasurement{}, ErrTooDarkAbsolute
		}
		return AbsoluteMeasurement{}, ErrTooDarkRelative
	case green > VEML6040_BRIGHT_THRESHOLD_HARD:
		if !adjust {
			return AbsoluteMeasurement{}, ErrTooBrightAbsolute
		}
		return AbsoluteMeasurement{}, ErrTooBrightRelative
	}

	return AbsoluteMeasurement{
		Red:             sensitivity * float64(raw.Red),
		Green:           sensitivity * float64(green),
		Blue:            sensitivity * float64(raw.Blue),
		White:           sensitivity * float64(raw.White),
		IntegrationTime: acquired,
	}, nil
}

// ReadAbsoluteRetry measures until a reading succeeds or fails in a way no
// further integration time change can fix. Each relative failure moves the
// integration time one step towards an end of the ladder, so this takes at
// most len(IntegrationTimes()) measurements.
func (a *AutoVEML6040) ReadAbsoluteRetry() (AbsoluteMeasurement, error) {
	for {
		m, err := a.ReadAbsoluteOnce()
		if IsRelative(err) {
			l.Debugf("Retrying measurement: %v", err)
			continue
		}
		return m, err
	}
}

// Close disables the sensor and releases the bus.
func (a *AutoVEML6040) Close() error {
	disableErr := a.sensor.Disable()
	closeErr := a.sensor.Close()
	return errors.Join(disableErr, closeErr)
}
