package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore()

	assert.Equal(t, DeviceTypeNone, s.DeviceType())
	assert.False(t, s.BleStarted())

	v := s.Values()
	assert.Equal(t, uint8(70), v.HeartRate)
	assert.Equal(t, uint8(100), v.BatteryLevel)
	assert.Equal(t, uint16(0), v.TreadmillSpeed)
	assert.Equal(t, uint32(0), v.TreadmillDistance)

	c := s.ConnectionState()
	assert.False(t, c.WifiConnected)
	assert.False(t, c.BusConnected)
	assert.False(t, c.BleClientConnected)
	assert.Empty(t, c.IPAddress)
}

func TestDeviceType_String(t *testing.T) {
	assert.Equal(t, "", DeviceTypeNone.String())
	assert.Equal(t, "heart_rate", DeviceTypeHeartRate.String())
	assert.Equal(t, "treadmill", DeviceTypeTreadmill.String())
}

func TestSetDeviceType_NotifiesOnlyOnChange(t *testing.T) {
	s := NewStore()

	var changes []DeviceType
	s.OnDeviceTypeChanged(func(t DeviceType) { changes = append(changes, t) })

	s.SetDeviceType(DeviceTypeHeartRate)
	s.SetDeviceType(DeviceTypeHeartRate) // no-op, same type
	s.SetDeviceType(DeviceTypeTreadmill)

	require.Equal(t, 2, len(changes))
	assert.Equal(t, DeviceTypeHeartRate, changes[0])
	assert.Equal(t, DeviceTypeTreadmill, changes[1])
	assert.True(t, s.BleStarted())
}

func TestSetBattery_Clamps(t *testing.T) {
	s := NewStore()

	s.SetBattery(150)
	assert.Equal(t, uint8(100), s.Values().BatteryLevel)

	s.SetBattery(-5)
	assert.Equal(t, uint8(0), s.Values().BatteryLevel)

	s.SetBattery(42)
	assert.Equal(t, uint8(42), s.Values().BatteryLevel)
}

func TestTreadmillSetters_FixedPoint(t *testing.T) {
	s := NewStore()

	s.SetTreadmillSpeed(5.0)
	assert.Equal(t, uint16(500), s.Values().TreadmillSpeed)

	s.SetTreadmillIncline(2.0)
	assert.Equal(t, int16(20), s.Values().TreadmillIncline)

	s.SetTreadmillIncline(-1.5)
	assert.Equal(t, int16(-15), s.Values().TreadmillIncline)
}

func TestSetTreadmillDistance_ResyncsAccumulator(t *testing.T) {
	s := NewStore()

	s.SetTreadmillSpeed(10.0)
	s.AccumulateTreadmillDistance(100) // some fractional progress

	s.SetTreadmillDistance(500)
	v := s.Values()
	assert.Equal(t, uint32(500), v.TreadmillDistance)
	assert.Equal(t, float64(500), v.DistanceAccumulator)

	s.ResetTreadmillDistance()
	v = s.Values()
	assert.Equal(t, uint32(0), v.TreadmillDistance)
	assert.Equal(t, float64(0), v.DistanceAccumulator)
}

func TestAccumulateTreadmillDistance_Formula(t *testing.T) {
	s := NewStore()

	// 3.60 km/h = 1 m/s, so 360 centi-km/h / 360 = 1 meter per second.
	s.SetTreadmillSpeed(3.60)
	s.AccumulateTreadmillDistance(1.0)
	assert.Equal(t, uint32(1), s.Values().TreadmillDistance)

	s.AccumulateTreadmillDistance(0.5)
	assert.Equal(t, uint32(1), s.Values().TreadmillDistance)
	s.AccumulateTreadmillDistance(0.5)
	assert.Equal(t, uint32(2), s.Values().TreadmillDistance)
}

func TestAccumulateTreadmillDistance_Additive(t *testing.T) {
	one := NewStore()
	split := NewStore()
	one.SetTreadmillSpeed(12.34)
	split.SetTreadmillSpeed(12.34)

	one.AccumulateTreadmillDistance(7.5)

	for i := 0; i < 15; i++ {
		split.AccumulateTreadmillDistance(0.5)
	}

	assert.InDelta(t, one.Values().DistanceAccumulator, split.Values().DistanceAccumulator, 1e-9)
	assert.Equal(t, one.Values().TreadmillDistance, split.Values().TreadmillDistance)
}

func TestAccumulateTreadmillDistance_DoesNotNotify(t *testing.T) {
	s := NewStore()
	s.SetTreadmillSpeed(10.0)

	notified := 0
	s.OnValuesChanged(func(SimulatedValues) { notified++ })

	s.AccumulateTreadmillDistance(1.0)
	assert.Equal(t, 0, notified)
}

func TestValueSetters_Notify(t *testing.T) {
	s := NewStore()

	var last SimulatedValues
	notified := 0
	s.OnValuesChanged(func(v SimulatedValues) {
		notified++
		last = v
	})

	s.SetHeartRate(88)
	require.Equal(t, 1, notified)
	assert.Equal(t, uint8(88), last.HeartRate)

	s.SetBattery(55)
	require.Equal(t, 2, notified)
	assert.Equal(t, uint8(55), last.BatteryLevel)
}

func TestConnectionSetters(t *testing.T) {
	s := NewStore()

	var last ConnectionState
	notified := 0
	s.OnConnectionChanged(func(c ConnectionState) {
		notified++
		last = c
	})

	s.SetWifiConnected(true, "192.168.1.20")
	assert.True(t, last.WifiConnected)
	assert.Equal(t, "192.168.1.20", last.IPAddress)

	s.SetBusConnected(true)
	assert.True(t, last.BusConnected)

	s.SetBleClientConnected(true)
	assert.True(t, last.BleClientConnected)

	s.SetWifiConnected(false, "")
	assert.False(t, last.WifiConnected)
	assert.Empty(t, last.IPAddress, "IP must be cleared when WiFi drops")

	assert.Equal(t, 4, notified)
}

func TestObserverDeregistration(t *testing.T) {
	s := NewStore()

	notified := 0
	unregister := s.OnValuesChanged(func(SimulatedValues) { notified++ })

	s.SetHeartRate(100)
	unregister()
	s.SetHeartRate(101)

	assert.Equal(t, 1, notified)
}
