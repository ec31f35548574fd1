package veml6040

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuto(t *testing.T, bus *fakeBus, start IntegrationTime) (*AutoVEML6040, *[]time.Duration) {
	t.Helper()
	a, err := NewAutoVEML6040(NewVEML6040(bus))
	require.NoError(t, err)

	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }
	if start != a.integrationTime {
		require.NoError(t, a.sensor.SetIntegrationTime(start))
		a.integrationTime = start
	}
	return a, &slept
}

func TestNewAutoVEML6040(t *testing.T) {
	bus := newFakeBus(0)
	a, err := NewAutoVEML6040(NewVEML6040(bus))
	require.NoError(t, err)

	assert.Equal(t, IntegrationTime160ms, a.IntegrationTime())
	assert.True(t, a.Sensor().Enabled())
	assert.Equal(t, VEML6040_CONFIG_AF|IntegrationTime160ms.BitPattern(), a.Sensor().Config())
	assert.Len(t, bus.writes, 3)
}

func TestNewAutoVEML6040_BusError(t *testing.T) {
	bus := newFakeBus(0)
	bus.writeErr = errBus
	_, err := NewAutoVEML6040(NewVEML6040(bus))
	assert.ErrorIs(t, err, errBus)
}

func TestReadAbsoluteOnce(t *testing.T) {
	tests := []struct {
		name    string
		start   IntegrationTime
		green   uint16
		wantErr error
		wantIT  IntegrationTime
	}{
		{"dark at longest", IntegrationTime1280ms, 5, ErrTooDarkAbsolute, IntegrationTime1280ms},
		{"dark at shortest", IntegrationTime40ms, 5, ErrTooDarkRelative, IntegrationTime80ms},
		{"bright at shortest", IntegrationTime40ms, 65000, ErrTooBrightAbsolute, IntegrationTime40ms},
		{"bright at longest", IntegrationTime1280ms, 65000, ErrTooBrightRelative, IntegrationTime640ms},
		{"in window", IntegrationTime320ms, 15000, nil, IntegrationTime320ms},
		{"soft dark boundary", IntegrationTime160ms, 500, nil, IntegrationTime160ms},
		{"soft bright boundary", IntegrationTime160ms, 20000, nil, IntegrationTime160ms},
		{"between hard and soft dark", IntegrationTime160ms, 300, nil, IntegrationTime320ms},
		{"between soft and hard bright", IntegrationTime160ms, 30000, nil, IntegrationTime80ms},
		{"hard dark boundary", IntegrationTime160ms, 10, nil, IntegrationTime320ms},
		{"hard bright boundary", IntegrationTime160ms, 64000, nil, IntegrationTime80ms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus(tt.green)
			a, slept := newTestAuto(t, bus, tt.start)

			m, err := a.ReadAbsoluteOnce()
			assert.Equal(t, tt.wantIT, a.IntegrationTime())
			it, ok := a.Sensor().IntegrationTime()
			require.True(t, ok)
			assert.Equal(t, tt.wantIT, it)
			assert.Equal(t, []time.Duration{tt.start.WaitTime()}, *slept)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			sensitivity := tt.start.Sensitivity()
			assert.Equal(t, tt.start, m.IntegrationTime)
			assert.Equal(t, sensitivity*float64(tt.green), m.Green)
			assert.Equal(t, sensitivity*float64(tt.green/2), m.Red)
			assert.Equal(t, sensitivity*float64(tt.green/4), m.Blue)
			assert.Equal(t, m.Green, m.Lux())
		})
	}
}

func TestReadAbsoluteOnce_InWindowAnySetting(t *testing.T) {
	for _, start := range IntegrationTimes() {
		bus := newFakeBus(15000)
		a, _ := newTestAuto(t, bus, start)

		m, err := a.ReadAbsoluteOnce()
		require.NoError(t, err, start.String())
		assert.Equal(t, start, a.IntegrationTime())
		assert.Equal(t, start.Sensitivity()*15000, m.Green)
	}
}

func TestReadAbsoluteOnce_TransportErrors(t *testing.T) {
	t.Run("trigger", func(t *testing.T) {
		bus := newFakeBus(15000)
		a, slept := newTestAuto(t, bus, IntegrationTime160ms)
		bus.writeErr = errBus

		_, err := a.ReadAbsoluteOnce()
		assert.ErrorIs(t, err, ErrRead)
		assert.ErrorIs(t, err, errBus)
		assert.Empty(t, *slept)
	})
	t.Run("read", func(t *testing.T) {
		bus := newFakeBus(15000)
		a, _ := newTestAuto(t, bus, IntegrationTime160ms)
		bus.readErr = errBus

		_, err := a.ReadAbsoluteOnce()
		assert.ErrorIs(t, err, ErrRead)
		assert.ErrorIs(t, err, errBus)
		assert.False(t, IsRelative(err))
		assert.False(t, IsAbsolute(err))
	})
}

func TestReadAbsoluteRetry_DarkTerminates(t *testing.T) {
	bus := newFakeBus(5)
	a, slept := newTestAuto(t, bus, IntegrationTime40ms)

	_, err := a.ReadAbsoluteRetry()
	assert.ErrorIs(t, err, ErrTooDarkAbsolute)
	assert.True(t, IsAbsolute(err))
	assert.Equal(t, IntegrationTime1280ms, a.IntegrationTime())
	// five relative failures, then the absolute one
	assert.Equal(t, 6, bus.triggers())
	assert.Len(t, *slept, 6)
}

func TestReadAbsoluteRetry_BrightTerminates(t *testing.T) {
	bus := newFakeBus(65535)
	a, _ := newTestAuto(t, bus, IntegrationTime1280ms)

	_, err := a.ReadAbsoluteRetry()
	assert.ErrorIs(t, err, ErrTooBrightAbsolute)
	assert.Equal(t, IntegrationTime40ms, a.IntegrationTime())
	assert.Equal(t, 6, bus.triggers())
}

func TestReadAbsoluteRetry_Success(t *testing.T) {
	bus := newFakeBus(15000)
	a, _ := newTestAuto(t, bus, IntegrationTime160ms)

	m, err := a.ReadAbsoluteRetry()
	require.NoError(t, err)
	assert.Equal(t, IntegrationTime160ms.Sensitivity()*15000, m.Green)
	assert.Equal(t, 1, bus.triggers())
}

func TestReadAbsoluteRetry_SimulatedBus(t *testing.T) {
	tests := []struct {
		name    string
		lux     float64
		wantErr error
	}{
		{"office", 400, nil},
		{"dim room", 5, nil},
		{"overcast daylight", 3000, nil},
		{"direct sun", 20000, ErrTooBrightAbsolute},
		{"night", 0, ErrTooDarkAbsolute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAutoVEML6040(NewVEML6040(NewSimulatedBus(tt.lux)))
			require.NoError(t, err)
			a.sleep = func(time.Duration) {}

			m, err := a.ReadAbsoluteRetry()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InEpsilon(t, tt.lux, m.Lux(), 0.02)
		})
	}
}

func TestAutoVEML6040_Close(t *testing.T) {
	bus := newFakeBus(0)
	a, _ := newTestAuto(t, bus, IntegrationTime160ms)

	require.NoError(t, a.Close())
	assert.False(t, a.Sensor().Enabled())
	assert.True(t, bus.closed)
}

func TestAutoVEML6040_FollowsLightChanges(t *testing.T) {
	bus := NewSimulatedBus(400)
	a, err := NewAutoVEML6040(NewVEML6040(bus))
	require.NoError(t, err)
	a.SetSleep(func(time.Duration) {})

	_, err = a.ReadAbsoluteRetry()
	require.NoError(t, err)
	assert.Equal(t, IntegrationTime160ms, a.IntegrationTime())

	// dusk: each reading succeeds and lengthens the exposure for the next one
	bus.SetLux(5)
	for i := 0; i < 3; i++ {
		_, err = a.ReadAbsoluteRetry()
		require.NoError(t, err)
	}
	assert.Equal(t, IntegrationTime1280ms, a.IntegrationTime())
	m, err := a.ReadAbsoluteRetry()
	require.NoError(t, err)
	assert.Equal(t, IntegrationTime1280ms, m.IntegrationTime)
	assert.InEpsilon(t, 5, m.Lux(), 0.02)

	// lights on: saturated readings are retried down to a usable setting
	bus.SetLux(3000)
	m, err = a.ReadAbsoluteRetry()
	require.NoError(t, err)
	assert.Equal(t, IntegrationTime160ms, m.IntegrationTime)
	assert.Equal(t, IntegrationTime80ms, a.IntegrationTime())
	assert.InEpsilon(t, 3000, m.Lux(), 0.02)
}
