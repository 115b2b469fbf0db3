package ble

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blesim/ble-sim/internal/clock"
	"github.com/blesim/ble-sim/internal/state"
)

func newTestManager(t *testing.T) (*Manager, *SimStack, *state.Store, *clock.Fake) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	store := state.NewStore()
	stack := NewSimStack(logger)
	clk := clock.NewFake(time.Unix(1000, 0))
	m := NewManager(store, stack, clk, logger)
	require.NoError(t, m.Setup())
	return m, stack, store, clk
}

func TestSetup_Idempotent(t *testing.T) {
	m, stack, _, _ := newTestManager(t)

	require.NoError(t, m.Setup())
	assert.True(t, stack.Initialized())
	assert.Equal(t, StateIdle, m.State())
}

func TestConfigureHeartRate(t *testing.T) {
	m, stack, _, _ := newTestManager(t)

	require.NoError(t, m.ConfigureHeartRate())

	assert.Equal(t, StateAdvertising, m.State())
	assert.Equal(t, "HR Simulator", stack.AdvertisedName())
	assert.ElementsMatch(t, []uint16{ServiceUUIDHeartRate, ServiceUUIDBattery}, stack.ServiceUUIDs())

	location, ok := stack.CharacteristicValue(CharUUIDBodySensorLocation)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, location)

	battery, ok := stack.CharacteristicValue(CharUUIDBatteryLevel)
	require.True(t, ok)
	assert.Equal(t, []byte{100}, battery, "initial battery from store")
}

func TestConfigureTreadmill(t *testing.T) {
	m, stack, _, _ := newTestManager(t)

	require.NoError(t, m.ConfigureTreadmill())

	assert.Equal(t, StateAdvertising, m.State())
	assert.Equal(t, "Treadmill Sim", stack.AdvertisedName())
	assert.ElementsMatch(t, []uint16{ServiceUUIDFitnessMachine}, stack.ServiceUUIDs())

	feature, ok := stack.CharacteristicValue(CharUUIDFitnessMachineFeature)
	require.True(t, ok)
	assert.Equal(t, []byte{0x0B, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, feature)
}

func TestTypeSwitch_NoLeftoverCharacteristics(t *testing.T) {
	m, stack, _, _ := newTestManager(t)

	require.NoError(t, m.ConfigureHeartRate())
	require.NoError(t, m.ConfigureTreadmill())

	assert.ElementsMatch(t, []uint16{ServiceUUIDFitnessMachine}, stack.ServiceUUIDs())
	assert.ElementsMatch(t, []uint16{CharUUIDFitnessMachineFeature, CharUUIDTreadmillData}, stack.CharacteristicUUIDs())

	require.NoError(t, m.ConfigureHeartRate())
	assert.ElementsMatch(t,
		[]uint16{CharUUIDHeartRateMeasurement, CharUUIDBodySensorLocation, CharUUIDBatteryLevel},
		stack.CharacteristicUUIDs())
}

func TestStop_RemovesServicesAndAdvertising(t *testing.T) {
	m, stack, _, _ := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())

	m.Stop()

	assert.Equal(t, StateIdle, m.State())
	assert.False(t, stack.Advertising())
	assert.Empty(t, stack.ServiceUUIDs())
}

func TestClientAttachDetach_AutoReadvertise(t *testing.T) {
	m, stack, store, _ := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())

	stack.ConnectCentral()
	assert.Equal(t, StateClientConnected, m.State())
	assert.True(t, store.ConnectionState().BleClientConnected)

	stack.DropConnection()
	assert.Equal(t, StateAdvertising, m.State())
	assert.False(t, store.ConnectionState().BleClientConnected)
	assert.True(t, stack.Advertising(), "detach restarts advertising automatically")
}

func TestDisconnectClient_NoClient_NoOp(t *testing.T) {
	m, stack, _, _ := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())

	m.DisconnectClient()

	assert.Equal(t, StateAdvertising, m.State())
	assert.True(t, stack.Advertising())
}

func TestDisconnectClient_ImmediateReadvertise(t *testing.T) {
	m, stack, _, _ := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())
	stack.ConnectCentral()

	m.DisconnectClient()

	assert.Equal(t, StateAdvertising, m.State())
	assert.True(t, stack.Advertising())
}

func TestDisconnectClientForDuration_SuppressesAdvertising(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())
	store.SetDeviceType(state.DeviceTypeHeartRate)
	stack.ConnectCentral()

	m.DisconnectClientForDuration(5 * time.Second)

	assert.Equal(t, StateAdvertisingPaused, m.State())
	assert.False(t, stack.Advertising())
	assert.False(t, store.ConnectionState().BleClientConnected)

	// Still paused just before the deadline.
	clk.Advance(4999 * time.Millisecond)
	m.Tick()
	assert.Equal(t, StateAdvertisingPaused, m.State())
	assert.False(t, stack.Advertising())

	// Resumes at the deadline.
	clk.Advance(time.Millisecond)
	m.Tick()
	assert.Equal(t, StateAdvertising, m.State())
	assert.True(t, stack.Advertising())
}

func TestDisconnectCommand_LastWriteWins(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())
	store.SetDeviceType(state.DeviceTypeHeartRate)
	stack.ConnectCentral()

	m.DisconnectClientForDuration(10 * time.Second)

	// A new command overwrites the pending deadline.
	stack.ConnectCentral()
	m.DisconnectClientForDuration(2 * time.Second)

	clk.Advance(2 * time.Second)
	m.Tick()
	assert.Equal(t, StateAdvertising, m.State(), "shorter overwritten deadline applies")
}

func TestTeardownForDuration_RestoresServiceSet(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeTreadmill)
	require.NoError(t, m.ConfigureTreadmill())
	store.SetTreadmillSpeed(5.0)
	store.SetTreadmillIncline(1.0)

	m.TeardownForDuration(3 * time.Second)

	assert.Equal(t, StateTornDown, m.State())
	assert.False(t, stack.Initialized(), "device invisible to scanners")
	assert.Equal(t, state.DeviceTypeTreadmill, store.DeviceType(), "store untouched")
	assert.Equal(t, uint16(500), store.Values().TreadmillSpeed)

	clk.Advance(2999 * time.Millisecond)
	m.Tick()
	assert.Equal(t, StateTornDown, m.State())

	clk.Advance(time.Millisecond)
	m.Tick()

	assert.True(t, stack.Initialized())
	assert.Equal(t, StateAdvertising, m.State())
	assert.Equal(t, "Treadmill Sim", stack.AdvertisedName())
	assert.ElementsMatch(t, []uint16{ServiceUUIDFitnessMachine}, stack.ServiceUUIDs())
}

func TestTeardownForDuration_DefaultDuration(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeHeartRate)
	require.NoError(t, m.ConfigureHeartRate())

	m.TeardownForDuration(0)

	clk.Advance(DefaultTeardownDuration - time.Millisecond)
	m.Tick()
	assert.Equal(t, StateTornDown, m.State())

	clk.Advance(time.Millisecond)
	m.Tick()
	assert.Equal(t, StateAdvertising, m.State())
	assert.Equal(t, "HR Simulator", stack.AdvertisedName())
}

func TestTeardown_DisconnectsClient(t *testing.T) {
	m, stack, store, _ := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeHeartRate)
	require.NoError(t, m.ConfigureHeartRate())
	stack.ConnectCentral()

	m.TeardownForDuration(time.Second)

	assert.False(t, store.ConnectionState().BleClientConnected)
}

func TestNotificationScheduler_HeartRate(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeHeartRate)
	require.NoError(t, m.ConfigureHeartRate())
	store.SetHeartRate(72)
	stack.ConnectCentral()

	clk.Advance(time.Second)
	m.Tick()

	frames := stack.Notifications(CharUUIDHeartRateMeasurement)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x00, 0x48}, frames[0])

	// No second frame until another interval elapses.
	clk.Advance(500 * time.Millisecond)
	m.Tick()
	assert.Len(t, stack.Notifications(CharUUIDHeartRateMeasurement), 1)

	clk.Advance(500 * time.Millisecond)
	m.Tick()
	assert.Len(t, stack.Notifications(CharUUIDHeartRateMeasurement), 2)
}

func TestNotificationScheduler_NoClientNoFrames(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeHeartRate)
	require.NoError(t, m.ConfigureHeartRate())

	clk.Advance(5 * time.Second)
	m.Tick()

	assert.Empty(t, stack.Notifications(CharUUIDHeartRateMeasurement))
}

func TestNotificationScheduler_TreadmillAccumulatesDistance(t *testing.T) {
	m, stack, store, clk := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeTreadmill)
	require.NoError(t, m.ConfigureTreadmill())
	store.SetTreadmillSpeed(3.60) // 1 m/s
	stack.ConnectCentral()

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		m.Tick()
	}

	assert.Equal(t, uint32(5), store.Values().TreadmillDistance)

	frames := stack.Notifications(CharUUIDTreadmillData)
	require.Len(t, frames, 5)
	last := frames[4]
	assert.Equal(t, byte(5), last[4], "distance low byte in last frame")
}

func TestNotificationScheduler_AccumulatesWithoutClient(t *testing.T) {
	m, _, store, clk := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeTreadmill)
	require.NoError(t, m.ConfigureTreadmill())
	store.SetTreadmillSpeed(7.20) // 2 m/s

	clk.Advance(time.Second)
	m.Tick()
	clk.Advance(time.Second)
	m.Tick()

	assert.Equal(t, uint32(4), store.Values().TreadmillDistance)
}

func TestNotificationScheduler_InactiveTypeDoesNothing(t *testing.T) {
	m, stack, _, clk := newTestManager(t)
	require.NoError(t, m.ConfigureHeartRate())
	// Device type left at None: the scheduler is gated off.

	clk.Advance(10 * time.Second)
	m.Tick()

	assert.Empty(t, stack.Notifications(CharUUIDHeartRateMeasurement))
}

func TestRefreshBattery(t *testing.T) {
	m, stack, store, _ := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeHeartRate)
	require.NoError(t, m.ConfigureHeartRate())

	m.RefreshBattery(42)

	value, ok := stack.CharacteristicValue(CharUUIDBatteryLevel)
	require.True(t, ok)
	assert.Equal(t, []byte{42}, value)
}

func TestRefreshBattery_NoBatteryService(t *testing.T) {
	m, stack, store, _ := newTestManager(t)
	store.SetDeviceType(state.DeviceTypeTreadmill)
	require.NoError(t, m.ConfigureTreadmill())

	m.RefreshBattery(42)

	_, ok := stack.CharacteristicValue(CharUUIDBatteryLevel)
	assert.False(t, ok)
}
