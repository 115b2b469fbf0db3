package ble

import (
	"fmt"
	"log"
	"sync"

	"tinygo.org/x/bluetooth"
)

// AdapterStack implements Stack on top of tinygo.org/x/bluetooth, exposing
// the simulator as a real BLE peripheral through the host adapter.
//
// Host stacks have no true deinit and cannot unregister GATT services, so
// Deinit and RemoveAllServices are best-effort: advertising stops and the
// handles are dropped, but previously registered services stay visible to an
// already-connected central until the process exits.
type AdapterStack struct {
	mu      sync.Mutex
	adapter *bluetooth.Adapter
	logger  *log.Logger
	handler ConnectHandler

	initialized bool
	enabled     bool
	advertising bool

	chars map[uint16]*bluetooth.Characteristic

	connected  bool
	connHandle uint16
	nextHandle uint16
	device     bluetooth.Device
}

// Verify AdapterStack implements Stack.
var _ Stack = (*AdapterStack)(nil)

// NewAdapterStack creates a stack backed by the default host adapter.
func NewAdapterStack(logger *log.Logger) *AdapterStack {
	if logger == nil {
		panic("AdapterStack: logger cannot be nil")
	}
	return &AdapterStack{
		adapter:    bluetooth.DefaultAdapter,
		logger:     logger,
		chars:      make(map[uint16]*bluetooth.Characteristic),
		nextHandle: 1,
	}
}

func (s *AdapterStack) SetConnectHandler(h ConnectHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *AdapterStack) Init(deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if !s.enabled {
		s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			s.onConnect(device, connected)
		})
		if err := s.adapter.Enable(); err != nil {
			return fmt.Errorf("enabling BLE adapter: %w", err)
		}
		s.enabled = true
	}
	s.initialized = true
	s.logger.Printf("adapter stack: initialized as %q", deviceName)
	return nil
}

func (s *AdapterStack) onConnect(device bluetooth.Device, connected bool) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	var conn uint16
	if connected {
		conn = s.nextHandle
		s.nextHandle++
		s.connected = true
		s.connHandle = conn
		s.device = device
	} else {
		conn = s.connHandle
		s.connected = false
		s.connHandle = 0
	}
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(conn, connected)
	}
}

func (s *AdapterStack) Deinit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAdvertisingLocked()
	s.chars = make(map[uint16]*bluetooth.Characteristic)
	s.initialized = false
	s.connected = false
	s.connHandle = 0
	s.logger.Print("adapter stack: deinit (host stack stays enabled; services persist until process exit)")
}

func (s *AdapterStack) AddService(svc ServiceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("adapter stack: not initialized")
	}

	service := bluetooth.Service{UUID: bluetooth.New16BitUUID(svc.UUID)}
	for _, c := range svc.Characteristics {
		handle := &bluetooth.Characteristic{}
		var flags bluetooth.CharacteristicPermissions
		if c.Read {
			flags |= bluetooth.CharacteristicReadPermission
		}
		if c.Notify {
			flags |= bluetooth.CharacteristicNotifyPermission
		}
		service.Characteristics = append(service.Characteristics, bluetooth.CharacteristicConfig{
			Handle: handle,
			UUID:   bluetooth.New16BitUUID(c.UUID),
			Value:  c.Value,
			Flags:  flags,
		})
		s.chars[c.UUID] = handle
	}

	if err := s.adapter.AddService(&service); err != nil {
		return fmt.Errorf("adding service %#04x: %w", svc.UUID, err)
	}
	return nil
}

func (s *AdapterStack) RemoveAllServices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The host stack cannot unregister services; dropping the handles at
	// least stops all further writes to them.
	s.chars = make(map[uint16]*bluetooth.Characteristic)
}

func (s *AdapterStack) StartAdvertising(localName string, serviceUUIDs []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("adapter stack: not initialized")
	}

	uuids := make([]bluetooth.UUID, len(serviceUUIDs))
	for i, u := range serviceUUIDs {
		uuids[i] = bluetooth.New16BitUUID(u)
	}

	adv := s.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    localName,
		ServiceUUIDs: uuids,
	}); err != nil {
		return fmt.Errorf("configuring advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("starting advertisement: %w", err)
	}
	s.advertising = true
	s.logger.Printf("adapter stack: advertising as %q", localName)
	return nil
}

func (s *AdapterStack) StopAdvertising() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAdvertisingLocked()
}

func (s *AdapterStack) stopAdvertisingLocked() {
	if !s.advertising {
		return
	}
	if err := s.adapter.DefaultAdvertisement().Stop(); err != nil {
		s.logger.Printf("adapter stack: stopping advertisement: %v", err)
	}
	s.advertising = false
}

func (s *AdapterStack) DisconnectClient(conn uint16) error {
	s.mu.Lock()
	if !s.connected || conn != s.connHandle {
		s.mu.Unlock()
		return fmt.Errorf("adapter stack: no client with handle %d", conn)
	}
	device := s.device
	s.mu.Unlock()

	// The detach event arrives through the adapter's connect handler.
	if err := device.Disconnect(); err != nil {
		return fmt.Errorf("disconnecting client %d: %w", conn, err)
	}
	return nil
}

func (s *AdapterStack) WriteCharacteristic(charUUID uint16, data []byte) error {
	s.mu.Lock()
	handle, ok := s.chars[charUUID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("adapter stack: characteristic %#04x not found", charUUID)
	}
	if _, err := handle.Write(data); err != nil {
		return fmt.Errorf("writing characteristic %#04x: %w", charUUID, err)
	}
	return nil
}
