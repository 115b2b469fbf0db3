package state

import (
	"math"
	"sync"

	"github.com/blesim/ble-sim/internal/events"
)

// DeviceType selects which GATT profile the simulator exposes.
// Exactly one type is active at a time.
type DeviceType int

const (
	DeviceTypeNone DeviceType = iota
	DeviceTypeHeartRate
	DeviceTypeTreadmill
)

// String returns the wire name of the device type as used on the control
// channel ("heart_rate", "treadmill", or "" for none).
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeHeartRate:
		return "heart_rate"
	case DeviceTypeTreadmill:
		return "treadmill"
	default:
		return ""
	}
}

// SimulatedValues holds the sensor values the simulator reports.
type SimulatedValues struct {
	// Heart rate monitor
	HeartRate    uint8 // bpm
	BatteryLevel uint8 // percent, 0-100

	// Treadmill
	TreadmillSpeed      uint16  // 0.01 km/h resolution
	TreadmillIncline    int16   // 0.1% resolution
	TreadmillDistance   uint32  // meters
	DistanceAccumulator float64 // fractional distance carry
}

// ConnectionState tracks the link status of the simulator's transports.
type ConnectionState struct {
	WifiConnected      bool
	BusConnected       bool
	BleClientConnected bool
	IPAddress          string
}

// Store is the authoritative device state: the active device type, the
// simulated sensor values, and the connection flags. Mutators notify the
// relevant registered observers synchronously before returning.
//
// The store is safe for concurrent use (the HTTP portal mutates it from
// request goroutines), but observers are invoked outside the lock in the
// mutating goroutine and must not call back into mutators of this store.
type Store struct {
	mu         sync.Mutex
	deviceType DeviceType
	values     SimulatedValues
	conn       ConnectionState

	deviceTypeChanged *events.CallbackEvent[DeviceType]
	valuesChanged     *events.CallbackEvent[SimulatedValues]
	connChanged       *events.CallbackEvent[ConnectionState]
}

// NewStore creates a Store with the simulator's boot defaults.
func NewStore() *Store {
	return &Store{
		values: SimulatedValues{
			HeartRate:    70,
			BatteryLevel: 100,
		},
		deviceTypeChanged: events.NewCallbackEvent[DeviceType](),
		valuesChanged:     events.NewCallbackEvent[SimulatedValues](),
		connChanged:       events.NewCallbackEvent[ConnectionState](),
	}
}

// DeviceType returns the active device type.
func (s *Store) DeviceType() DeviceType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceType
}

// BleStarted reports whether a device type is active, i.e. whether any GATT
// service set should exist.
func (s *Store) BleStarted() bool {
	return s.DeviceType() != DeviceTypeNone
}

// Values returns a copy of the current simulated values.
func (s *Store) Values() SimulatedValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// ConnectionState returns a copy of the current connection flags.
func (s *Store) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// SetDeviceType switches the active device type. Observers are notified only
// when the type actually changes.
func (s *Store) SetDeviceType(t DeviceType) {
	s.mu.Lock()
	if s.deviceType == t {
		s.mu.Unlock()
		return
	}
	s.deviceType = t
	s.mu.Unlock()
	s.deviceTypeChanged.Notify(t)
}

// SetHeartRate sets the simulated heart rate in bpm.
func (s *Store) SetHeartRate(bpm uint8) {
	s.mu.Lock()
	s.values.HeartRate = bpm
	v := s.values
	s.mu.Unlock()
	s.valuesChanged.Notify(v)
}

// SetBattery sets the battery level, clamped to [0, 100].
func (s *Store) SetBattery(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	s.mu.Lock()
	s.values.BatteryLevel = uint8(level)
	v := s.values
	s.mu.Unlock()
	s.valuesChanged.Notify(v)
}

// SetTreadmillSpeed sets the treadmill speed from km/h, stored in 0.01 km/h
// units.
func (s *Store) SetTreadmillSpeed(kmh float64) {
	s.mu.Lock()
	s.values.TreadmillSpeed = uint16(kmh * 100)
	v := s.values
	s.mu.Unlock()
	s.valuesChanged.Notify(v)
}

// SetTreadmillIncline sets the treadmill incline from percent, stored in
// 0.1% units.
func (s *Store) SetTreadmillIncline(pct float64) {
	s.mu.Lock()
	s.values.TreadmillIncline = int16(pct * 10)
	v := s.values
	s.mu.Unlock()
	s.valuesChanged.Notify(v)
}

// SetTreadmillDistance sets the total distance in meters and resynchronizes
// the fractional accumulator to the same value.
func (s *Store) SetTreadmillDistance(meters uint32) {
	s.mu.Lock()
	s.values.TreadmillDistance = meters
	s.values.DistanceAccumulator = float64(meters)
	v := s.values
	s.mu.Unlock()
	s.valuesChanged.Notify(v)
}

// ResetTreadmillDistance zeroes the total distance and the accumulator.
func (s *Store) ResetTreadmillDistance() {
	s.mu.Lock()
	s.values.TreadmillDistance = 0
	s.values.DistanceAccumulator = 0
	v := s.values
	s.mu.Unlock()
	s.valuesChanged.Notify(v)
}

// AccumulateTreadmillDistance advances the distance by deltaSeconds of travel
// at the current speed. Speed is in 0.01 km/h units, so meters per second is
// speed/360. The integer distance is the floor of the accumulator.
//
// This runs once per notification interval and intentionally does not fire a
// values-changed notification; periodic reporting picks the value up.
func (s *Store) AccumulateTreadmillDistance(deltaSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values.DistanceAccumulator += float64(s.values.TreadmillSpeed) / 360.0 * deltaSeconds
	s.values.TreadmillDistance = uint32(math.Floor(s.values.DistanceAccumulator))
}

// SetWifiConnected sets the WiFi link flag. The IP address is recorded only
// while connected and cleared otherwise.
func (s *Store) SetWifiConnected(connected bool, ip string) {
	s.mu.Lock()
	s.conn.WifiConnected = connected
	if connected {
		s.conn.IPAddress = ip
	} else {
		s.conn.IPAddress = ""
	}
	c := s.conn
	s.mu.Unlock()
	s.connChanged.Notify(c)
}

// SetBusConnected sets the message-bus link flag.
func (s *Store) SetBusConnected(connected bool) {
	s.mu.Lock()
	s.conn.BusConnected = connected
	c := s.conn
	s.mu.Unlock()
	s.connChanged.Notify(c)
}

// SetBleClientConnected sets the BLE client link flag.
func (s *Store) SetBleClientConnected(connected bool) {
	s.mu.Lock()
	s.conn.BleClientConnected = connected
	c := s.conn
	s.mu.Unlock()
	s.connChanged.Notify(c)
}

// OnDeviceTypeChanged registers an observer for device type changes.
// Returns a deregistration function.
func (s *Store) OnDeviceTypeChanged(callback func(DeviceType)) func() {
	return s.deviceTypeChanged.Listen(callback)
}

// OnValuesChanged registers an observer for simulated value changes.
// Returns a deregistration function.
func (s *Store) OnValuesChanged(callback func(SimulatedValues)) func() {
	return s.valuesChanged.Listen(callback)
}

// OnConnectionChanged registers an observer for connection flag changes.
// Returns a deregistration function.
func (s *Store) OnConnectionChanged(callback func(ConnectionState)) func() {
	return s.connChanged.Listen(callback)
}
