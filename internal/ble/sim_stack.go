package ble

import (
	"fmt"
	"log"
	"sync"
)

// SimStack is an in-memory BLE peripheral stack. It is the default stack of
// the simulator binary and the test double for the lifecycle manager,
// following the same pattern as a mock device implementation.
//
// Centrals are simulated with ConnectCentral/DropConnection; connection
// events are delivered synchronously to the registered handler.
type SimStack struct {
	mu      sync.Mutex
	logger  *log.Logger
	handler ConnectHandler

	initialized bool
	deviceName  string
	services    []ServiceConfig
	values      map[uint16][]byte

	advertising bool
	advName     string
	advUUIDs    []uint16

	connected  bool
	connHandle uint16
	nextHandle uint16

	notified map[uint16][][]byte
}

// Verify SimStack implements Stack.
var _ Stack = (*SimStack)(nil)

// NewSimStack creates a simulated stack.
func NewSimStack(logger *log.Logger) *SimStack {
	if logger == nil {
		panic("SimStack: logger cannot be nil")
	}
	return &SimStack{
		logger:     logger,
		values:     make(map[uint16][]byte),
		notified:   make(map[uint16][][]byte),
		nextHandle: 1,
	}
}

func (s *SimStack) SetConnectHandler(h ConnectHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *SimStack) Init(deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.initialized = true
	s.deviceName = deviceName
	s.logger.Printf("sim stack: initialized as %q", deviceName)
	return nil
}

func (s *SimStack) Deinit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.services = nil
	s.values = make(map[uint16][]byte)
	s.advertising = false
	s.advName = ""
	s.advUUIDs = nil
	s.connected = false
	s.connHandle = 0
	s.logger.Print("sim stack: deinitialized, device invisible to scanners")
}

func (s *SimStack) AddService(svc ServiceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("sim stack: not initialized")
	}
	s.services = append(s.services, svc)
	for _, c := range svc.Characteristics {
		value := make([]byte, len(c.Value))
		copy(value, c.Value)
		s.values[c.UUID] = value
	}
	return nil
}

func (s *SimStack) RemoveAllServices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = nil
	s.values = make(map[uint16][]byte)
}

func (s *SimStack) StartAdvertising(localName string, serviceUUIDs []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("sim stack: not initialized")
	}
	s.advertising = true
	s.advName = localName
	s.advUUIDs = append([]uint16(nil), serviceUUIDs...)
	s.logger.Printf("sim stack: advertising as %q", localName)
	return nil
}

func (s *SimStack) StopAdvertising() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertising = false
	s.advName = ""
	s.advUUIDs = nil
}

func (s *SimStack) DisconnectClient(conn uint16) error {
	s.mu.Lock()
	if !s.connected || conn != s.connHandle {
		s.mu.Unlock()
		return fmt.Errorf("sim stack: no client with handle %d", conn)
	}
	s.connected = false
	s.connHandle = 0
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(conn, false)
	}
	return nil
}

func (s *SimStack) WriteCharacteristic(charUUID uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[charUUID]; !ok {
		return fmt.Errorf("sim stack: characteristic %#04x not found", charUUID)
	}
	value := make([]byte, len(data))
	copy(value, data)
	s.values[charUUID] = value
	if s.connected {
		s.notified[charUUID] = append(s.notified[charUUID], value)
	}
	return nil
}

// ConnectCentral simulates a central attaching. Returns the connection
// handle. Panics if a client is already attached (the simulator supports at
// most one concurrent link).
func (s *SimStack) ConnectCentral() uint16 {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		panic("SimStack: ConnectCentral on uninitialized stack")
	}
	if s.connected {
		s.mu.Unlock()
		panic("SimStack: a central is already connected")
	}
	conn := s.nextHandle
	s.nextHandle++
	s.connected = true
	s.connHandle = conn
	// Peripherals stop advertising once a central attaches.
	s.advertising = false
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(conn, true)
	}
	return conn
}

// DropConnection simulates a central-initiated disconnect.
func (s *SimStack) DropConnection() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	conn := s.connHandle
	s.connected = false
	s.connHandle = 0
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(conn, false)
	}
}

// Initialized reports whether the stack is up.
func (s *SimStack) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Advertising reports whether the device is currently advertising.
func (s *SimStack) Advertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

// AdvertisedName returns the current advertised local name.
func (s *SimStack) AdvertisedName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advName
}

// ServiceUUIDs returns the UUIDs of the currently registered services.
func (s *SimStack) ServiceUUIDs() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	uuids := make([]uint16, 0, len(s.services))
	for _, svc := range s.services {
		uuids = append(uuids, svc.UUID)
	}
	return uuids
}

// CharacteristicUUIDs returns the UUIDs of all registered characteristics.
func (s *SimStack) CharacteristicUUIDs() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	uuids := make([]uint16, 0, len(s.values))
	for uuid := range s.values {
		uuids = append(uuids, uuid)
	}
	return uuids
}

// CharacteristicValue returns the current value of a characteristic.
func (s *SimStack) CharacteristicValue(charUUID uint16) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[charUUID]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Notifications returns the frames pushed to a characteristic while a
// client was connected.
func (s *SimStack) Notifications(charUUID uint16) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.notified[charUUID]
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
