package veml6040

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBus = errors.New("bus: nack")

// fakeBus records config writes and serves fixed channel counts.
type fakeBus struct {
	writes   [][]byte
	channels map[byte]uint16
	writeErr error
	readErr  error
	closed   bool
}

func newFakeBus(green uint16) *fakeBus {
	return &fakeBus{channels: map[byte]uint16{
		VEML6040_REGISTER_R_DATA: green / 2,
		VEML6040_REGISTER_G_DATA: green,
		VEML6040_REGISTER_B_DATA: green / 4,
		VEML6040_REGISTER_W_DATA: green,
	}}
}

func (f *fakeBus) Write(buf []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), buf...))
	return nil
}

func (f *fakeBus) ReadReg(reg byte, buf []byte) error {
	if f.readErr != nil {
		return f.readErr
	}
	v := f.channels[reg]
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	return nil
}

func (f *fakeBus) Close() error {
	f.closed = true
	return nil
}

func (f *fakeBus) lastWrite() []byte {
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

// triggers counts the config writes that carried the trigger bit.
func (f *fakeBus) triggers() int {
	n := 0
	for _, w := range f.writes {
		if w[1]&VEML6040_CONFIG_TRIG != 0 {
			n++
		}
	}
	return n
}

func TestVEML6040_EnableDisable(t *testing.T) {
	bus := newFakeBus(0)
	v := NewVEML6040(bus)

	require.NoError(t, v.Disable())
	assert.Equal(t, []byte{VEML6040_REGISTER_CONFIG, VEML6040_CONFIG_SD, 0}, bus.lastWrite())
	assert.False(t, v.Enabled())

	require.NoError(t, v.Enable())
	assert.Equal(t, []byte{VEML6040_REGISTER_CONFIG, 0x00, 0}, bus.lastWrite())
	assert.True(t, v.Enabled())
}

func TestVEML6040_SetIntegrationTimeKeepsFlags(t *testing.T) {
	bus := newFakeBus(0)
	v := NewVEML6040(bus)

	require.NoError(t, v.SetMeasurementMode(MeasurementModeManual))
	require.NoError(t, v.SetIntegrationTime(IntegrationTime1280ms))
	assert.Equal(t, VEML6040_CONFIG_AF|0x50, v.Config())

	require.NoError(t, v.SetIntegrationTime(IntegrationTime80ms))
	assert.Equal(t, VEML6040_CONFIG_AF|0x10, v.Config())
	it, ok := v.IntegrationTime()
	require.True(t, ok)
	assert.Equal(t, IntegrationTime80ms, it)

	require.NoError(t, v.SetMeasurementMode(MeasurementModeAuto))
	assert.Equal(t, byte(0x10), v.Config())

	assert.Error(t, v.SetIntegrationTime(IntegrationTime(9)))
}

func TestVEML6040_ShadowOnlyUpdatedOnSuccess(t *testing.T) {
	bus := newFakeBus(0)
	v := NewVEML6040(bus)
	require.NoError(t, v.SetIntegrationTime(IntegrationTime320ms))

	bus.writeErr = errBus
	err := v.SetIntegrationTime(IntegrationTime40ms)
	require.ErrorIs(t, err, errBus)
	assert.Equal(t, IntegrationTime320ms.BitPattern(), v.Config())

	err = v.Disable()
	require.ErrorIs(t, err, errBus)
	assert.True(t, v.Enabled())
}

func TestVEML6040_TriggerNotPersisted(t *testing.T) {
	bus := newFakeBus(0)
	v := NewVEML6040(bus)
	require.NoError(t, v.SetMeasurementMode(MeasurementModeManual))

	require.NoError(t, v.TriggerMeasurement())
	assert.Equal(t, []byte{VEML6040_REGISTER_CONFIG, VEML6040_CONFIG_AF | VEML6040_CONFIG_TRIG, 0}, bus.lastWrite())
	assert.Equal(t, VEML6040_CONFIG_AF, v.Config())

	require.NoError(t, v.SetIntegrationTime(IntegrationTime640ms))
	assert.Zero(t, bus.lastWrite()[1]&VEML6040_CONFIG_TRIG)
	assert.Equal(t, 1, bus.triggers())
}

func TestVEML6040_ReadChannelLittleEndian(t *testing.T) {
	bus := newFakeBus(0)
	bus.channels[VEML6040_REGISTER_G_DATA] = 0x1234
	v := NewVEML6040(bus)

	g, err := v.ReadGreenChannel()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), g)
}

func TestVEML6040_ReadAllChannels(t *testing.T) {
	bus := &fakeBus{channels: map[byte]uint16{
		VEML6040_REGISTER_R_DATA: 1,
		VEML6040_REGISTER_G_DATA: 2,
		VEML6040_REGISTER_B_DATA: 3,
		VEML6040_REGISTER_W_DATA: 65535,
	}}
	v := NewVEML6040(bus)

	m, err := v.ReadAllChannels()
	require.NoError(t, err)
	assert.Equal(t, RawMeasurement{Red: 1, Green: 2, Blue: 3, White: 65535}, m)

	bus.readErr = errBus
	_, err = v.ReadAllChannels()
	assert.ErrorIs(t, err, errBus)
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "red", ChannelRed.String())
	assert.Equal(t, "white", ChannelWhite.String())
	assert.Equal(t, "unknown", Channel(0x42).String())
}
