package ble

// CharacteristicConfig describes one characteristic of a GATT service.
type CharacteristicConfig struct {
	UUID   uint16
	Value  []byte
	Read   bool
	Notify bool
}

// ServiceConfig describes a GATT service and its characteristics.
type ServiceConfig struct {
	UUID            uint16
	Characteristics []CharacteristicConfig
}

// ConnectHandler is invoked when a central attaches or detaches. The conn
// handle is valid only while the client is attached.
type ConnectHandler func(conn uint16, connected bool)

// Stack abstracts the BLE peripheral stack so the lifecycle manager can run
// against a real adapter or a fully simulated one.
//
// Implementations deliver connection events through the registered
// ConnectHandler; the simulated stack does so synchronously from the calling
// goroutine.
type Stack interface {
	// Init brings the stack up. Idempotent.
	Init(deviceName string) error
	// Deinit fully releases the stack: all services and characteristics are
	// destroyed and the device becomes invisible to scanners.
	Deinit()
	// SetConnectHandler registers the attach/detach handler. Must be called
	// before Init.
	SetConnectHandler(h ConnectHandler)

	AddService(svc ServiceConfig) error
	RemoveAllServices()

	StartAdvertising(localName string, serviceUUIDs []uint16) error
	StopAdvertising()

	// DisconnectClient force-drops the attached central.
	DisconnectClient(conn uint16) error

	// WriteCharacteristic updates a characteristic value and notifies a
	// subscribed client, if any.
	WriteCharacteristic(charUUID uint16, data []byte) error
}
