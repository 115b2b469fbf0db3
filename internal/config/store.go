package config

import (
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"sync"

	"github.com/spf13/viper"
)

// Persisted keys. The file is the simulator's equivalent of the firmware's
// NVS namespace.
const (
	keyConfigured = "configured"
	keyWifiSSID   = "wifi_ssid"
	keyWifiPass   = "wifi_pass"
	keyMQTTHost   = "mqtt_host"
	keyMQTTPort   = "mqtt_port"
	keyDeviceID   = "device_id"
)

const (
	defaultMQTTPort = 1883

	apSSIDPrefix   = "BLE-Sim-"
	deviceIDPrefix = "ble-sim-"
)

// Store is the persisted device configuration: WiFi credentials, broker
// address, and device id. Backed by a viper config file.
type Store struct {
	mu     sync.Mutex
	v      *viper.Viper
	path   string
	logger *log.Logger

	configured bool
	wifiSSID   string
	wifiPass   string
	mqttHost   string
	mqttPort   uint16
	deviceID   string
}

// NewStore creates a Store persisting to the given file path.
func NewStore(path string, logger *log.Logger) *Store {
	if logger == nil {
		panic("config.Store: logger cannot be nil")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyMQTTPort, defaultMQTTPort)
	return &Store{
		v:      v,
		path:   path,
		logger: logger,
	}
}

// Load reads the configuration file. A missing file is not an error; the
// store then holds defaults. Returns whether the device is configured.
func (s *Store) Load() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				s.logger.Printf("config: reading %s: %v", s.path, err)
			}
		}
	}

	s.configured = s.v.GetBool(keyConfigured)
	s.wifiSSID = s.v.GetString(keyWifiSSID)
	s.wifiPass = s.v.GetString(keyWifiPass)
	s.mqttHost = s.v.GetString(keyMQTTHost)
	s.mqttPort = uint16(s.v.GetUint32(keyMQTTPort))
	s.deviceID = s.v.GetString(keyDeviceID)
	if s.deviceID == "" {
		s.deviceID = defaultDeviceID()
	}
	return s.configured
}

// Save writes the current configuration to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(keyConfigured, s.configured)
	s.v.Set(keyWifiSSID, s.wifiSSID)
	s.v.Set(keyWifiPass, s.wifiPass)
	s.v.Set(keyMQTTHost, s.mqttHost)
	s.v.Set(keyMQTTPort, int(s.mqttPort))
	s.v.Set(keyDeviceID, s.deviceID)

	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing config %s: %w", s.path, err)
	}
	s.logger.Printf("config: saved to %s", s.path)
	return nil
}

// Clear wipes the persisted configuration and resets the store to defaults.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configured = false
	s.wifiSSID = ""
	s.wifiPass = ""
	s.mqttHost = ""
	s.mqttPort = defaultMQTTPort
	s.deviceID = defaultDeviceID()

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.SetDefault(keyMQTTPort, defaultMQTTPort)
	s.v = v

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing config %s: %w", s.path, err)
	}
	s.logger.Print("config: cleared")
	return nil
}

// Configured reports whether the device has WiFi credentials.
func (s *Store) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

func (s *Store) WifiSSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wifiSSID
}

func (s *Store) WifiPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wifiPass
}

func (s *Store) MQTTHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mqttHost
}

func (s *Store) MQTTPort() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mqttPort
}

func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// SetWifiCredentials stores WiFi credentials. A non-empty SSID marks the
// device configured.
func (s *Store) SetWifiCredentials(ssid, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wifiSSID = ssid
	s.wifiPass = password
	if ssid != "" {
		s.configured = true
	}
}

// SetMQTTConfig stores the broker host and port.
func (s *Store) SetMQTTConfig(host string, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mqttHost = host
	s.mqttPort = port
}

// SetDeviceID stores the device id, falling back to the host-derived default
// when empty.
func (s *Store) SetDeviceID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = defaultDeviceID()
	}
	s.deviceID = id
}

// APName returns the SSID used for the configuration access point.
func (s *Store) APName() string {
	return apSSIDPrefix + hostSuffix()
}

// defaultDeviceID derives a stable per-host device id, standing in for the
// firmware's chip-id-based default.
func defaultDeviceID() string {
	return deviceIDPrefix + hostSuffix()
}

func hostSuffix() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "unknown"
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%06x", h.Sum32()&0xffffff)
}
