package veml6040

/*
 * veml6040 - Package for interacting with VEML6040 RGBW color sensors.
 *
 * Ref:
 * https://www.vishay.com/docs/84276/veml6040.pdf
 * https://www.vishay.com/docs/84331/designingveml6040.pdf
 *
 */

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// SetLogger replaces the package logger, so the driver logs alongside the application.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

// VEML6040 is the register interface of the sensor. It keeps a shadow of the
// last config byte written, so settings can be changed without reading the
// register back. Not safe for concurrent use.
type VEML6040 struct {
	config byte
	bus    Bus
}

// RawMeasurement holds the counts of all four channels from one measurement.
type RawMeasurement struct {
	Red   uint16
	Green uint16
	Blue  uint16
	White uint16
}

func NewVEML6040(bus Bus) *VEML6040 {
	return &VEML6040{bus: bus}
}

// Config returns the shadow of the config register.
func (v *VEML6040) Config() byte {
	return v.config
}

func (v *VEML6040) Enabled() bool {
	return v.config&VEML6040_CONFIG_SD == 0
}

// IntegrationTime decodes the integration time from the config shadow.
func (v *VEML6040) IntegrationTime() (IntegrationTime, bool) {
	return integrationTimeFromBits(v.config)
}

// Enable the sensor
func (v *VEML6040) Enable() error {
	return v.writeConfig(v.config &^ VEML6040_CONFIG_SD)
}

// Disable the sensor (shutdown)
func (v *VEML6040) Disable() error {
	return v.writeConfig(v.config | VEML6040_CONFIG_SD)
}

// Set the integration timing for the sensor
func (v *VEML6040) SetIntegrationTime(it IntegrationTime) error {
	if !it.Valid() {
		return fmt.Errorf("veml6040: invalid integration time %d", int(it))
	}
	return v.writeConfig(v.config&^VEML6040_CONFIG_IT_MASK | it.BitPattern())
}

// Set the measurement mode, auto (continuous) or manual (on demand)
func (v *VEML6040) SetMeasurementMode(mode MeasurementMode) error {
	var err error
	switch mode {
	case MeasurementModeAuto:
		err = v.writeConfig(v.config &^ VEML6040_CONFIG_AF)
	case MeasurementModeManual:
		err = v.writeConfig(v.config | VEML6040_CONFIG_AF)
	default:
		return fmt.Errorf("veml6040: unknown measurement mode %d", mode)
	}
	if err != nil {
		return err
	}
	l.Debugf("Measurement mode: %s", MeasurementModeToString(mode))
	return nil
}

// TriggerMeasurement starts a single measurement in manual mode. It is not
// needed in auto mode.
func (v *VEML6040) TriggerMeasurement() error {
	// The trigger bit is kept out of the shadow so the next config write does
	// not trigger again.
	if err := v.bus.Write([]byte{VEML6040_REGISTER_CONFIG, v.config | VEML6040_CONFIG_TRIG, 0}); err != nil {
		return fmt.Errorf("failed to trigger measurement: %w", err)
	}
	return nil
}

func (v *VEML6040) ReadRedChannel() (uint16, error) {
	return v.ReadChannel(ChannelRed)
}

func (v *VEML6040) ReadGreenChannel() (uint16, error) {
	return v.ReadChannel(ChannelGreen)
}

func (v *VEML6040) ReadBlueChannel() (uint16, error) {
	return v.ReadChannel(ChannelBlue)
}

func (v *VEML6040) ReadWhiteChannel() (uint16, error) {
	return v.ReadChannel(ChannelWhite)
}

// ReadChannel reads the 16-bit count of a single channel.
func (v *VEML6040) ReadChannel(ch Channel) (uint16, error) {
	data := make([]byte, 2)
	if err := v.bus.ReadReg(byte(ch), data); err != nil {
		return 0, fmt.Errorf("failed to read %s channel: %w", ch, err)
	}
	return binary.LittleEndian.Uint16(data), nil
}

// ReadAllChannels reads the red, green, blue and white channels in turn.
func (v *VEML6040) ReadAllChannels() (RawMeasurement, error) {
	var m RawMeasurement
	var err error
	if m.Red, err = v.ReadRedChannel(); err != nil {
		return RawMeasurement{}, err
	}
	if m.Green, err = v.ReadGreenChannel(); err != nil {
		return RawMeasurement{}, err
	}
	if m.Blue, err = v.ReadBlueChannel(); err != nil {
		return RawMeasurement{}, err
	}
	if m.White, err = v.ReadWhiteChannel(); err != nil {
		return RawMeasurement{}, err
	}
	l.Debugf("Red: %v, Green: %v, Blue: %v, White: %v", m.Red, m.Green, m.Blue, m.White)
	return m, nil
}

// Close releases the underlying bus.
func (v *VEML6040) Close() error {
	return v.bus.Close()
}

func (v *VEML6040) writeConfig(config byte) error {
	if err := v.bus.Write([]byte{VEML6040_REGISTER_CONFIG, config, 0}); err != nil {
		return fmt.Errorf("failed to write config 0x%02x: %w", config, err)
	}
	v.config = config
	return nil
}
