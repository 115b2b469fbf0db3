package wifi

import (
	"log"
	"time"

	"github.com/blesim/ble-sim/internal/clock"
	"github.com/blesim/ble-sim/internal/config"
	"github.com/blesim/ble-sim/internal/state"
)

const (
	// connectInterval is the minimum spacing between station connect
	// attempts.
	connectInterval = 15 * time.Second

	// maxRetries caps the retry counter. Once reached, the access point
	// comes up alongside the station interface and attempts continue
	// indefinitely; the counter saturates rather than resetting.
	maxRetries = 5
)

// ManagerState describes the WiFi state machine's current mode.
type ManagerState int

const (
	// StateAPOnly: unconfigured, only the configuration access point runs.
	StateAPOnly ManagerState = iota
	// StateConnectingSTA: configured and attempting to join; the access
	// point may be active alongside (dual AP+STA fallback).
	StateConnectingSTA
	// StateSTAConnected: joined the configured network.
	StateSTAConnected
)

// Manager drives the WiFi station/access-point state machine. Ticked once
// per loop iteration; never blocks.
type Manager struct {
	cfg    *config.Store
	store  *state.Store
	radio  Radio
	clk    clock.Clock
	logger *log.Logger

	connected   bool
	apActive    bool
	retryCount  int
	lastAttempt time.Time
}

// NewManager creates a WiFi Manager.
func NewManager(cfg *config.Store, store *state.Store, radio Radio, clk clock.Clock, logger *log.Logger) *Manager {
	if cfg == nil {
		panic("wifi.Manager: config cannot be nil")
	}
	if store == nil {
		panic("wifi.Manager: store cannot be nil")
	}
	if radio == nil {
		panic("wifi.Manager: radio cannot be nil")
	}
	if clk == nil {
		panic("wifi.Manager: clock cannot be nil")
	}
	if logger == nil {
		panic("wifi.Manager: logger cannot be nil")
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		radio:  radio,
		clk:    clk,
		logger: logger,
	}
}

// Setup brings up the initial mode: station when configured, access point
// otherwise.
func (m *Manager) Setup() {
	if m.cfg.Configured() {
		m.logger.Print("wifi: starting in STA mode (configured)")
		return
	}
	m.startAP()
}

// Tick advances the state machine by one loop iteration.
func (m *Manager) Tick() {
	if !m.cfg.Configured() {
		if !m.apActive {
			m.startAP()
		}
		return
	}

	st := m.radio.StationStatus()
	if st.Connected {
		if !m.connected {
			m.connected = true
			m.retryCount = 0
			m.logger.Printf("wifi: connected, IP %s", st.IP)
			m.store.SetWifiConnected(true, st.IP)
			m.stopAP()
		}
		return
	}

	if m.connected {
		m.connected = false
		m.retryCount = 0
		m.logger.Print("wifi: disconnected")
		m.store.SetWifiConnected(false, "")
		m.startAP()
	}

	// Don't spam connection attempts.
	now := m.clk.Now()
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < connectInterval {
		return
	}
	m.lastAttempt = now

	// The counter saturates at the cap; attempts continue regardless.
	if m.retryCount < maxRetries {
		m.retryCount++
	}

	if m.retryCount >= maxRetries && !m.apActive {
		m.logger.Print("wifi: connection failed after multiple attempts, starting AP for reconfiguration")
		m.startAP()
		return
	}

	m.logger.Printf("wifi: connecting (attempt %d/%d): %s", m.retryCount, maxRetries, m.cfg.WifiSSID())
	m.radio.StartStation(m.cfg.WifiSSID(), m.cfg.WifiPassword())
}

// Reconnect resets retry bookkeeping so the next tick attempts immediately.
// Called after the configuration changes.
func (m *Manager) Reconnect() {
	m.retryCount = 0
	m.lastAttempt = time.Time{}
}

// State returns the current state machine mode.
func (m *Manager) State() ManagerState {
	switch {
	case m.connected:
		return StateSTAConnected
	case m.cfg.Configured():
		return StateConnectingSTA
	default:
		return StateAPOnly
	}
}

// Connected reports whether the station link is up.
func (m *Manager) Connected() bool { return m.connected }

// APActive reports whether the configuration access point is up.
func (m *Manager) APActive() bool { return m.apActive }

func (m *Manager) startAP() {
	if m.apActive {
		return
	}
	name := m.cfg.APName()
	if err := m.radio.StartAccessPoint(name); err != nil {
		m.logger.Printf("wifi: starting access point: %v", err)
		return
	}
	m.apActive = true
	m.logger.Printf("wifi: access point started, SSID %s", name)
}

func (m *Manager) stopAP() {
	if !m.apActive {
		return
	}
	m.radio.StopAccessPoint()
	m.apActive = false
	m.logger.Print("wifi: access point stopped (connected)")
}
