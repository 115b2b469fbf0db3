package ble

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/blesim/ble-sim/internal/clock"
	"github.com/blesim/ble-sim/internal/state"
)

const (
	// notifyInterval is the fixed step of the notification scheduler. The
	// treadmill distance accumulator advances by exactly this much simulated
	// time per notification, regardless of actual loop latency.
	notifyInterval = time.Second

	// DefaultTeardownDuration applies when a teardown command carries no
	// duration.
	DefaultTeardownDuration = 3 * time.Second

	stackDeviceName     = "BLE Simulator"
	deviceNameHeartRate = "HR Simulator"
	deviceNameTreadmill = "Treadmill Sim"
)

// State describes the lifecycle manager's current mode.
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateAdvertising
	StateClientConnected
	StateAdvertisingPaused
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateClientConnected:
		return "client-connected"
	case StateAdvertisingPaused:
		return "advertising-paused"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// Manager owns the BLE lifecycle: GATT service construction and teardown,
// advertising, the notification scheduler, and the simulated disconnect and
// teardown behaviors. "Waiting" is expressed as deadlines compared against
// the clock on every Tick; a new disconnect command overwrites any previous
// deadline (last-write-wins, no queueing).
type Manager struct {
	store  *state.Store
	stack  Stack
	clk    clock.Clock
	logger *log.Logger

	mu              sync.Mutex
	initialized     bool
	servicesUp      bool
	hasBattery      bool
	advertising     bool
	advName         string
	advUUIDs        []uint16
	clientConnected bool
	connHandle      uint16

	advertisingPaused   bool
	advertisingResumeAt time.Time

	tornDown bool
	reinitAt time.Time

	lastNotify time.Time
}

// NewManager creates a Manager and registers itself as the stack's
// connection handler.
func NewManager(store *state.Store, stack Stack, clk clock.Clock, logger *log.Logger) *Manager {
	if store == nil {
		panic("ble.Manager: store cannot be nil")
	}
	if stack == nil {
		panic("ble.Manager: stack cannot be nil")
	}
	if clk == nil {
		panic("ble.Manager: clock cannot be nil")
	}
	if logger == nil {
		panic("ble.Manager: logger cannot be nil")
	}
	m := &Manager{
		store:  store,
		stack:  stack,
		clk:    clk,
		logger: logger,
	}
	stack.SetConnectHandler(m.onConnectionEvent)
	return m
}

// Setup initializes the BLE stack. Idempotent.
func (m *Manager) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	if err := m.stack.Init(stackDeviceName); err != nil {
		return fmt.Errorf("initializing BLE stack: %w", err)
	}
	m.initialized = true
	m.lastNotify = m.clk.Now()
	m.logger.Print("BLE initialized")
	return nil
}

// Tick advances the manager by one loop iteration: completes an expired
// teardown, resumes advertising after an expired pause, and runs the
// notification scheduler. Never blocks.
func (m *Manager) Tick() {
	now := m.clk.Now()

	m.mu.Lock()
	reinit := false
	if m.tornDown && !m.reinitAt.IsZero() && !now.Before(m.reinitAt) {
		m.reinitAt = time.Time{}
		m.tornDown = false
		reinit = true
	}
	m.mu.Unlock()
	if reinit {
		m.reinit()
	}

	if !m.store.BleStarted() {
		return
	}

	m.mu.Lock()
	resume := false
	if m.advertisingPaused && !m.advertisingResumeAt.IsZero() && !now.Before(m.advertisingResumeAt) {
		m.advertisingResumeAt = time.Time{}
		m.advertisingPaused = false
		resume = true
	}
	notifyDue := false
	if now.Sub(m.lastNotify) >= notifyInterval {
		m.lastNotify = now
		notifyDue = true
	}
	advName, advUUIDs := m.advName, m.advUUIDs
	clientConnected := m.clientConnected
	canWrite := m.initialized && m.servicesUp
	m.mu.Unlock()

	if resume {
		if err := m.stack.StartAdvertising(advName, advUUIDs); err != nil {
			m.logger.Printf("resuming advertising: %v", err)
		} else {
			m.mu.Lock()
			m.advertising = true
			m.mu.Unlock()
			m.logger.Print("advertising resumed after timed pause")
		}
	}

	if notifyDue {
		m.sendNotifications(clientConnected, canWrite)
	}
}

func (m *Manager) sendNotifications(clientConnected, canWrite bool) {
	switch m.store.DeviceType() {
	case state.DeviceTypeHeartRate:
		if !clientConnected || !canWrite {
			return
		}
		v := m.store.Values()
		if err := m.stack.WriteCharacteristic(CharUUIDHeartRateMeasurement, EncodeHeartRateMeasurement(v.HeartRate)); err != nil {
			m.logger.Printf("notifying heart rate: %v", err)
		}
	case state.DeviceTypeTreadmill:
		// Distance advances by one interval of simulated time even while no
		// client is attached or the stack is torn down.
		m.store.AccumulateTreadmillDistance(notifyInterval.Seconds())
		if !clientConnected || !canWrite {
			return
		}
		v := m.store.Values()
		frame := EncodeTreadmillData(v.TreadmillSpeed, v.TreadmillIncline, v.TreadmillDistance)
		if err := m.stack.WriteCharacteristic(CharUUIDTreadmillData, frame); err != nil {
			m.logger.Printf("notifying treadmill data: %v", err)
		}
	}
}

// ConfigureHeartRate tears down any existing service set, builds the Heart
// Rate and Battery services, and starts advertising. During a pending
// teardown the rebuild is deferred to reinit, which reads the current device
// type from the store.
func (m *Manager) ConfigureHeartRate() error {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		m.logger.Print("stack torn down; heart rate services will be built on reinit")
		return nil
	}
	if !m.initialized {
		m.mu.Unlock()
		return fmt.Errorf("ble: stack not initialized")
	}
	m.mu.Unlock()

	m.logger.Print("setting up Heart Rate service")
	m.Stop()

	battery := m.store.Values().BatteryLevel
	if err := m.stack.AddService(ServiceConfig{
		UUID: ServiceUUIDHeartRate,
		Characteristics: []CharacteristicConfig{
			{UUID: CharUUIDHeartRateMeasurement, Notify: true},
			{UUID: CharUUIDBodySensorLocation, Read: true, Value: []byte{bodySensorLocationChest}},
		},
	}); err != nil {
		return fmt.Errorf("adding heart rate service: %w", err)
	}
	if err := m.stack.AddService(ServiceConfig{
		UUID: ServiceUUIDBattery,
		Characteristics: []CharacteristicConfig{
			{UUID: CharUUIDBatteryLevel, Read: true, Notify: true, Value: []byte{battery}},
		},
	}); err != nil {
		return fmt.Errorf("adding battery service: %w", err)
	}

	uuids := []uint16{ServiceUUIDHeartRate, ServiceUUIDBattery}
	if err := m.stack.StartAdvertising(deviceNameHeartRate, uuids); err != nil {
		return fmt.Errorf("advertising heart rate services: %w", err)
	}

	m.mu.Lock()
	m.servicesUp = true
	m.hasBattery = true
	m.advertising = true
	m.advName = deviceNameHeartRate
	m.advUUIDs = uuids
	m.mu.Unlock()

	m.logger.Print("Heart Rate + Battery services started, advertising")
	return nil
}

// ConfigureTreadmill tears down any existing service set, builds the Fitness
// Machine service, and starts advertising.
func (m *Manager) ConfigureTreadmill() error {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		m.logger.Print("stack torn down; treadmill services will be built on reinit")
		return nil
	}
	if !m.initialized {
		m.mu.Unlock()
		return fmt.Errorf("ble: stack not initialized")
	}
	m.mu.Unlock()

	m.logger.Print("setting up Fitness Machine service (treadmill)")
	m.Stop()

	if err := m.stack.AddService(ServiceConfig{
		UUID: ServiceUUIDFitnessMachine,
		Characteristics: []CharacteristicConfig{
			{UUID: CharUUIDFitnessMachineFeature, Read: true, Value: fitnessMachineFeature},
			{UUID: CharUUIDTreadmillData, Notify: true},
		},
	}); err != nil {
		return fmt.Errorf("adding fitness machine service: %w", err)
	}

	uuids := []uint16{ServiceUUIDFitnessMachine}
	if err := m.stack.StartAdvertising(deviceNameTreadmill, uuids); err != nil {
		return fmt.Errorf("advertising fitness machine service: %w", err)
	}

	m.mu.Lock()
	m.servicesUp = true
	m.hasBattery = false
	m.advertising = true
	m.advName = deviceNameTreadmill
	m.advUUIDs = uuids
	m.mu.Unlock()

	m.logger.Print("Fitness Machine service (treadmill) started, advertising")
	return nil
}

// Stop removes all services and stops advertising.
func (m *Manager) Stop() {
	m.stack.StopAdvertising()
	m.stack.RemoveAllServices()

	m.mu.Lock()
	m.servicesUp = false
	m.hasBattery = false
	m.advertising = false
	m.advName = ""
	m.advUUIDs = nil
	m.mu.Unlock()

	m.logger.Print("BLE services stopped and cleaned up")
}

// DisconnectClient force-drops the attached client; the detach event
// restarts advertising immediately. Logged no-op without a client.
func (m *Manager) DisconnectClient() {
	m.mu.Lock()
	if !m.clientConnected {
		m.mu.Unlock()
		m.logger.Print("no BLE client connected to disconnect")
		return
	}
	conn := m.connHandle
	m.mu.Unlock()

	m.logger.Print("forcing BLE client disconnect (immediate re-advertise)")
	if err := m.stack.DisconnectClient(conn); err != nil {
		m.logger.Printf("disconnecting client: %v", err)
	}
}

// DisconnectClientForDuration force-drops the attached client and suppresses
// the automatic re-advertise until d has elapsed. Logged no-op without a
// client.
func (m *Manager) DisconnectClientForDuration(d time.Duration) {
	m.mu.Lock()
	if !m.clientConnected {
		m.mu.Unlock()
		m.logger.Print("no BLE client connected to disconnect")
		return
	}
	conn := m.connHandle
	// Pause before dropping so the detach event does not auto-resume.
	m.advertisingPaused = true
	m.advertisingResumeAt = m.clk.Now().Add(d)
	m.mu.Unlock()

	m.logger.Printf("forcing BLE client disconnect, pausing advertising for %v", d)
	if err := m.stack.DisconnectClient(conn); err != nil {
		m.logger.Printf("disconnecting client: %v", err)
	}
}

// TeardownForDuration fully deinitializes the BLE stack so the device
// disappears from scans, then reinitializes after d and rebuilds the service
// set for the device type current at that moment. Device state is untouched.
func (m *Manager) TeardownForDuration(d time.Duration) {
	if d <= 0 {
		d = DefaultTeardownDuration
	}
	m.logger.Printf("tearing down BLE stack, reinit in %v", d)

	m.mu.Lock()
	m.initialized = false
	m.servicesUp = false
	m.hasBattery = false
	m.advertising = false
	m.advName = ""
	m.advUUIDs = nil
	m.clientConnected = false
	m.connHandle = 0
	m.advertisingPaused = false
	m.advertisingResumeAt = time.Time{}
	m.tornDown = true
	m.reinitAt = m.clk.Now().Add(d)
	m.mu.Unlock()

	m.stack.Deinit()
	m.store.SetBleClientConnected(false)

	m.logger.Print("BLE stack torn down - device will disappear from scans")
}

func (m *Manager) reinit() {
	m.logger.Print("reinitializing BLE stack after teardown")
	if err := m.Setup(); err != nil {
		m.logger.Printf("reinitializing stack: %v", err)
		return
	}

	switch m.store.DeviceType() {
	case state.DeviceTypeHeartRate:
		if err := m.ConfigureHeartRate(); err != nil {
			m.logger.Printf("restoring heart rate services: %v", err)
			return
		}
		m.logger.Print("restored Heart Rate service")
	case state.DeviceTypeTreadmill:
		if err := m.ConfigureTreadmill(); err != nil {
			m.logger.Printf("restoring treadmill service: %v", err)
			return
		}
		m.logger.Print("restored Treadmill service")
	}

	m.logger.Print("BLE stack reinitialized - device visible again")
}

// RefreshBattery pushes a new battery level to a subscribed client. No-op
// when no battery service exists (treadmill profile or stack down).
func (m *Manager) RefreshBattery(level uint8) {
	m.mu.Lock()
	ok := m.initialized && m.hasBattery
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.stack.WriteCharacteristic(CharUUIDBatteryLevel, EncodeBatteryLevel(level)); err != nil {
		m.logger.Printf("updating battery level: %v", err)
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.tornDown:
		return StateTornDown
	case !m.initialized:
		return StateUninitialized
	case m.clientConnected:
		return StateClientConnected
	case m.advertisingPaused:
		return StateAdvertisingPaused
	case m.advertising:
		return StateAdvertising
	default:
		return StateIdle
	}
}

func (m *Manager) onConnectionEvent(conn uint16, connected bool) {
	if connected {
		m.mu.Lock()
		m.connHandle = conn
		m.clientConnected = true
		m.advertising = false
		m.mu.Unlock()

		m.store.SetBleClientConnected(true)
		m.logger.Printf("BLE client connected (conn: %d)", conn)
		return
	}

	m.mu.Lock()
	m.connHandle = 0
	m.clientConnected = false
	resume := !m.advertisingPaused && m.initialized && m.servicesUp
	advName, advUUIDs := m.advName, m.advUUIDs
	m.mu.Unlock()

	m.store.SetBleClientConnected(false)
	m.logger.Print("BLE client disconnected")

	if resume {
		if err := m.stack.StartAdvertising(advName, advUUIDs); err != nil {
			m.logger.Printf("restarting advertising: %v", err)
			return
		}
		m.mu.Lock()
		m.advertising = true
		m.mu.Unlock()
	}
}
