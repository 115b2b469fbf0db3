package wifi

import (
	"fmt"
	"log"
	"sync"
)

// Status is the station-side link state reported by a Radio.
type Status struct {
	Connected bool
	IP        string
}

// Radio abstracts the WiFi hardware: a station interface joining a network
// and an access-point interface for the configuration portal. Both may be
// active at once (dual AP+STA fallback).
type Radio interface {
	// StartStation begins (or renews) a connection attempt to the network.
	StartStation(ssid, password string)
	StopStation()
	StationStatus() Status

	StartAccessPoint(ssid string) error
	StopAccessPoint()
}

// SimRadio is an in-memory Radio. The station link comes up when a station
// attempt has been started, the SSID matches the simulated network, and the
// link is available; tests flip availability to exercise retry and fallback
// paths.
type SimRadio struct {
	mu     sync.Mutex
	logger *log.Logger

	networkSSID   string
	linkAvailable bool
	ip            string

	stationSSID    string
	stationStarted bool
	apSSID         string
	apActive       bool
}

// Verify SimRadio implements Radio.
var _ Radio = (*SimRadio)(nil)

// NewSimRadio creates a simulated radio whose network accepts any SSID and
// whose link is available.
func NewSimRadio(logger *log.Logger) *SimRadio {
	if logger == nil {
		panic("SimRadio: logger cannot be nil")
	}
	return &SimRadio{
		logger:        logger,
		linkAvailable: true,
		ip:            "192.168.1.42",
	}
}

// SetNetwork restricts the simulated network to a single SSID. An empty SSID
// accepts any.
func (r *SimRadio) SetNetwork(ssid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networkSSID = ssid
}

// SetLinkAvailable makes the simulated network reachable or unreachable.
func (r *SimRadio) SetLinkAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linkAvailable = available
}

// SetIP sets the address handed out on connect.
func (r *SimRadio) SetIP(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ip = ip
}

func (r *SimRadio) StartStation(ssid, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stationSSID = ssid
	r.stationStarted = true
	r.logger.Printf("sim radio: station attempt to %q", ssid)
}

func (r *SimRadio) StopStation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stationStarted = false
	r.stationSSID = ""
}

func (r *SimRadio) StationStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	connected := r.stationStarted && r.linkAvailable &&
		(r.networkSSID == "" || r.networkSSID == r.stationSSID)
	if !connected {
		return Status{}
	}
	return Status{Connected: true, IP: r.ip}
}

func (r *SimRadio) StartAccessPoint(ssid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.apActive {
		return fmt.Errorf("sim radio: access point already active")
	}
	r.apSSID = ssid
	r.apActive = true
	r.logger.Printf("sim radio: access point %q started", ssid)
	return nil
}

func (r *SimRadio) StopAccessPoint() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apActive = false
	r.apSSID = ""
	r.logger.Print("sim radio: access point stopped")
}

// APActive reports whether the simulated access point is up.
func (r *SimRadio) APActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apActive
}

// APSSID returns the SSID of the simulated access point.
func (r *SimRadio) APSSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apSSID
}
