package control

import (
	"encoding/json"
	"log"
	"time"

	"github.com/blesim/ble-sim/internal/state"
)

// Topic suffixes of the inbound control channels, relative to the device's
// topic prefix.
const (
	TopicSuffixConfig     = "config"
	TopicSuffixSet        = "set"
	TopicSuffixDisconnect = "disconnect"
)

const defaultTeardownDuration = 3000 * time.Millisecond

// Outcome tells the caller which report, if any, to publish after a command
// has been applied.
type Outcome int

const (
	ReportNone Outcome = iota
	ReportStatus
	ReportValues
)

// BleLifecycle is the subset of the BLE lifecycle manager the router drives.
type BleLifecycle interface {
	ConfigureHeartRate() error
	ConfigureTreadmill() error
	Stop()
	DisconnectClient()
	DisconnectClientForDuration(d time.Duration)
	TeardownForDuration(d time.Duration)
	RefreshBattery(level uint8)
}

// Router dispatches inbound control commands to the state store and the BLE
// lifecycle manager.
type Router struct {
	store  *state.Store
	ble    BleLifecycle
	logger *log.Logger
}

// NewRouter creates a Router.
func NewRouter(store *state.Store, ble BleLifecycle, logger *log.Logger) *Router {
	if store == nil {
		panic("control.Router: store cannot be nil")
	}
	if ble == nil {
		panic("control.Router: ble cannot be nil")
	}
	if logger == nil {
		panic("control.Router: logger cannot be nil")
	}
	return &Router{store: store, ble: ble, logger: logger}
}

// Route handles one inbound command addressed by its topic suffix. Unknown
// suffixes and malformed payloads are logged and dropped; commands never
// fail the caller.
func (r *Router) Route(suffix string, payload []byte) Outcome {
	switch suffix {
	case TopicSuffixConfig:
		return r.handleConfig(payload)
	case TopicSuffixSet:
		return r.handleSet(payload)
	case TopicSuffixDisconnect:
		return r.handleDisconnect(payload)
	default:
		r.logger.Printf("control: unknown topic suffix %q", suffix)
		return ReportNone
	}
}

func (r *Router) handleConfig(payload []byte) Outcome {
	var cmd struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		r.logger.Printf("control: malformed config command: %v", err)
		return ReportNone
	}

	switch cmd.Type {
	case "heart_rate":
		r.store.SetDeviceType(state.DeviceTypeHeartRate)
		if err := r.ble.ConfigureHeartRate(); err != nil {
			r.logger.Printf("control: configuring heart rate profile: %v", err)
		}
	case "treadmill":
		r.store.SetDeviceType(state.DeviceTypeTreadmill)
		if err := r.ble.ConfigureTreadmill(); err != nil {
			r.logger.Printf("control: configuring treadmill profile: %v", err)
		}
	default:
		// Anything else, including "none", stops the peripheral.
		r.store.SetDeviceType(state.DeviceTypeNone)
		r.ble.Stop()
	}
	return ReportStatus
}

func (r *Router) handleSet(payload []byte) Outcome {
	// Absent fields stay untouched; each present field applies
	// independently.
	var cmd struct {
		HeartRate *int     `json:"heart_rate"`
		Battery   *int     `json:"battery"`
		Speed     *float64 `json:"speed"`
		Incline   *float64 `json:"incline"`
		Distance  *int64   `json:"distance"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		r.logger.Printf("control: malformed set command: %v", err)
		return ReportNone
	}

	if cmd.HeartRate != nil {
		r.store.SetHeartRate(uint8(*cmd.HeartRate))
	}
	if cmd.Battery != nil {
		r.store.SetBattery(*cmd.Battery)
		r.ble.RefreshBattery(r.store.Values().BatteryLevel)
	}
	if cmd.Speed != nil {
		r.store.SetTreadmillSpeed(*cmd.Speed)
	}
	if cmd.Incline != nil {
		r.store.SetTreadmillIncline(*cmd.Incline)
	}
	if cmd.Distance != nil {
		d := *cmd.Distance
		if d < 0 {
			d = 0
		}
		r.store.SetTreadmillDistance(uint32(d))
	}
	return ReportValues
}

func (r *Router) handleDisconnect(payload []byte) Outcome {
	var cmd struct {
		DurationMs int  `json:"duration_ms"`
		Teardown   bool `json:"teardown"`
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		r.logger.Printf("control: malformed disconnect command: %v", err)
		return ReportNone
	}

	d := time.Duration(cmd.DurationMs) * time.Millisecond
	switch {
	case cmd.Teardown:
		if d <= 0 {
			d = defaultTeardownDuration
		}
		r.ble.TeardownForDuration(d)
	case d > 0:
		r.ble.DisconnectClientForDuration(d)
	default:
		r.ble.DisconnectClient()
	}
	return ReportNone
}
