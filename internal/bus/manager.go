package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/blesim/ble-sim/internal/clock"
	"github.com/blesim/ble-sim/internal/config"
	"github.com/blesim/ble-sim/internal/control"
	"github.com/blesim/ble-sim/internal/state"
)

const (
	// reconnectInterval is the minimum spacing between broker connect
	// attempts.
	reconnectInterval = 5 * time.Second

	// statusReportInterval is the period of unsolicited status/values
	// reports while connected.
	statusReportInterval = 10 * time.Second

	topicPrefix     = "ble-sim/"
	firmwareVersion = "1.0.0"
)

// Manager owns the broker session: it connects once WiFi is up, subscribes
// to the device's control topics, feeds inbound commands to the router, and
// publishes status and values reports. Ticked once per loop iteration; never
// blocks.
//
// Inbound messages arrive on the client's own goroutine and are queued; the
// next Tick drains them, so commands always run on the main loop.
type Manager struct {
	cfg    *config.Store
	store  *state.Store
	router *control.Router
	client Client
	clk    clock.Clock
	logger *log.Logger

	baseTopic string
	clientID  string

	connected   bool
	lastAttempt time.Time
	lastReport  time.Time

	inboundMu sync.Mutex
	inbound   []Message
}

// NewManager creates a bus Manager for the device identified by the config
// store's device id.
func NewManager(cfg *config.Store, store *state.Store, router *control.Router, client Client, clk clock.Clock, logger *log.Logger) *Manager {
	if cfg == nil {
		panic("bus.Manager: config cannot be nil")
	}
	if store == nil {
		panic("bus.Manager: store cannot be nil")
	}
	if router == nil {
		panic("bus.Manager: router cannot be nil")
	}
	if client == nil {
		panic("bus.Manager: client cannot be nil")
	}
	if clk == nil {
		panic("bus.Manager: clock cannot be nil")
	}
	if logger == nil {
		panic("bus.Manager: logger cannot be nil")
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		router:    router,
		client:    client,
		clk:       clk,
		logger:    logger,
		baseTopic: topicPrefix + cfg.DeviceID() + "/",
		clientID:  fmt.Sprintf("%s-%04x", cfg.DeviceID(), rand.Intn(0x10000)),
	}
}

// BaseTopic returns the device's topic prefix, ending in "/".
func (m *Manager) BaseTopic() string { return m.baseTopic }

// Tick advances the session by one loop iteration.
func (m *Manager) Tick() {
	m.drainInbound()
	m.maintainConnection()

	if m.connected && m.clk.Now().Sub(m.lastReport) >= statusReportInterval {
		m.publishStatus()
		m.publishValues()
		m.lastReport = m.clk.Now()
	}
}

// Close publishes a final offline status and closes the session.
func (m *Manager) Close() {
	if m.connected {
		m.publish("status", m.statusPayload(false), true)
	}
	m.client.Disconnect()
	m.connected = false
	m.store.SetBusConnected(false)
}

func (m *Manager) maintainConnection() {
	if !m.cfg.Configured() || !m.store.ConnectionState().WifiConnected {
		m.markDisconnected()
		return
	}

	if m.client.IsConnected() {
		if !m.connected {
			m.onConnected()
		}
		return
	}

	m.markDisconnected()

	now := m.clk.Now()
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < reconnectInterval {
		return
	}
	m.lastAttempt = now

	broker := fmt.Sprintf("tcp://%s:%d", m.cfg.MQTTHost(), m.cfg.MQTTPort())
	m.logger.Printf("bus: connecting to %s as %s", broker, m.clientID)
	err := m.client.Connect(ConnectOptions{
		BrokerURL:   broker,
		ClientID:    m.clientID,
		WillTopic:   m.baseTopic + "status",
		WillPayload: m.statusPayload(false),
	}, m.enqueue)
	if err != nil {
		m.logger.Printf("bus: connect: %v", err)
	}
}

// onConnected runs once per established session: mark the flag, subscribe
// the control topics, and send an initial retained status.
func (m *Manager) onConnected() {
	m.connected = true
	m.store.SetBusConnected(true)
	m.logger.Print("bus: connected")

	for _, suffix := range []string{
		control.TopicSuffixConfig,
		control.TopicSuffixSet,
		control.TopicSuffixDisconnect,
	} {
		if err := m.client.Subscribe(m.baseTopic + suffix); err != nil {
			m.logger.Printf("bus: subscribe %s: %v", suffix, err)
		}
	}

	m.publishStatus()
	m.lastReport = m.clk.Now()
}

func (m *Manager) markDisconnected() {
	if !m.connected {
		return
	}
	m.connected = false
	m.logger.Print("bus: disconnected")
	m.store.SetBusConnected(false)
}

func (m *Manager) enqueue(msg Message) {
	m.inboundMu.Lock()
	defer m.inboundMu.Unlock()
	m.inbound = append(m.inbound, msg)
}

func (m *Manager) drainInbound() {
	m.inboundMu.Lock()
	pending := m.inbound
	m.inbound = nil
	m.inboundMu.Unlock()

	for _, msg := range pending {
		suffix, ok := strings.CutPrefix(msg.Topic, m.baseTopic)
		if !ok {
			m.logger.Printf("bus: message on unexpected topic %q", msg.Topic)
			continue
		}
		switch m.router.Route(suffix, msg.Payload) {
		case control.ReportStatus:
			m.publishStatus()
		case control.ReportValues:
			m.publishValues()
		}
	}
}

func (m *Manager) statusPayload(online bool) []byte {
	conn := m.store.ConnectionState()
	payload, _ := json.Marshal(map[string]any{
		"online":           online,
		"firmware_version": firmwareVersion,
		"type":             m.store.DeviceType().String(),
		"ble_started":      m.store.BleStarted(),
		"ip":               conn.IPAddress,
	})
	return payload
}

func (m *Manager) publishStatus() {
	m.publish("status", m.statusPayload(true), true)
}

// publishValues reports the simulated values of the active device type.
// With no active type there is nothing to report.
func (m *Manager) publishValues() {
	v := m.store.Values()
	var report map[string]any
	switch m.store.DeviceType() {
	case state.DeviceTypeHeartRate:
		report = map[string]any{
			"heart_rate": v.HeartRate,
			"battery":    v.BatteryLevel,
		}
	case state.DeviceTypeTreadmill:
		report = map[string]any{
			"speed":    float64(v.TreadmillSpeed) / 100.0,
			"incline":  float64(v.TreadmillIncline) / 10.0,
			"distance": v.TreadmillDistance,
		}
	default:
		return
	}
	payload, _ := json.Marshal(report)
	m.publish("values", payload, false)
}

func (m *Manager) publish(suffix string, payload []byte, retained bool) {
	if !m.connected {
		return
	}
	if err := m.client.Publish(m.baseTopic+suffix, payload, retained); err != nil {
		m.logger.Printf("bus: publish %s: %v", suffix, err)
	}
}
