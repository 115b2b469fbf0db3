package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ble-sim.yaml")
	logger := log.New(os.Stderr, "[config-test] ", log.LstdFlags)
	return NewStore(path, logger), path
}

func TestLoad_MissingFile(t *testing.T) {
	s, _ := newTestStore(t)

	configured := s.Load()

	assert.False(t, configured)
	assert.False(t, s.Configured())
	assert.Empty(t, s.WifiSSID())
	assert.Equal(t, uint16(1883), s.MQTTPort())
	assert.True(t, strings.HasPrefix(s.DeviceID(), "ble-sim-"))
}

func TestSaveAndReload(t *testing.T) {
	s, path := newTestStore(t)
	s.Load()

	s.SetWifiCredentials("mynet", "secret")
	s.SetMQTTConfig("broker.local", 8883)
	s.SetDeviceID("sim-01")
	require.NoError(t, s.Save())

	reloaded := NewStore(path, log.New(os.Stderr, "", 0))
	configured := reloaded.Load()

	assert.True(t, configured)
	assert.Equal(t, "mynet", reloaded.WifiSSID())
	assert.Equal(t, "secret", reloaded.WifiPassword())
	assert.Equal(t, "broker.local", reloaded.MQTTHost())
	assert.Equal(t, uint16(8883), reloaded.MQTTPort())
	assert.Equal(t, "sim-01", reloaded.DeviceID())
}

func TestSetWifiCredentials_EmptySSIDDoesNotConfigure(t *testing.T) {
	s, _ := newTestStore(t)
	s.Load()

	s.SetWifiCredentials("", "pass")
	assert.False(t, s.Configured())

	s.SetWifiCredentials("net", "pass")
	assert.True(t, s.Configured())
}

func TestSetDeviceID_EmptyFallsBackToDefault(t *testing.T) {
	s, _ := newTestStore(t)
	s.Load()

	s.SetDeviceID("")
	assert.True(t, strings.HasPrefix(s.DeviceID(), "ble-sim-"))

	s.SetDeviceID("custom")
	assert.Equal(t, "custom", s.DeviceID())
}

func TestClear(t *testing.T) {
	s, path := newTestStore(t)
	s.Load()

	s.SetWifiCredentials("net", "pass")
	s.SetMQTTConfig("broker", 1884)
	require.NoError(t, s.Save())
	require.FileExists(t, path)

	require.NoError(t, s.Clear())

	assert.False(t, s.Configured())
	assert.Empty(t, s.WifiSSID())
	assert.Equal(t, uint16(1883), s.MQTTPort())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAPName(t *testing.T) {
	s, _ := newTestStore(t)
	assert.True(t, strings.HasPrefix(s.APName(), "BLE-Sim-"))
}
