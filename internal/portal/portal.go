package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/blesim/ble-sim/internal/config"
	"github.com/blesim/ble-sim/internal/state"
)

// Reconnecter restarts the WiFi connection attempt after the configuration
// changed.
type Reconnecter interface {
	Reconnect()
}

// Portal is the device's HTTP configuration surface: a single-page form plus
// a small JSON API. On hardware it is served from the fallback access point;
// here it listens on a normal TCP address.
type Portal struct {
	cfg     *config.Store
	store   *state.Store
	wifi    Reconnecter
	restart func()
	logger  *log.Logger

	mux    *http.ServeMux
	server *http.Server
}

// New creates a Portal. restart is invoked after a factory reset; it must
// not block.
func New(cfg *config.Store, store *state.Store, wifi Reconnecter, restart func(), logger *log.Logger) *Portal {
	if cfg == nil {
		panic("portal: config cannot be nil")
	}
	if store == nil {
		panic("portal: store cannot be nil")
	}
	if wifi == nil {
		panic("portal: wifi cannot be nil")
	}
	if restart == nil {
		panic("portal: restart cannot be nil")
	}
	if logger == nil {
		panic("portal: logger cannot be nil")
	}

	p := &Portal{
		cfg:     cfg,
		store:   store,
		wifi:    wifi,
		restart: restart,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	p.mux.HandleFunc("GET /{$}", p.handleIndex)
	p.mux.HandleFunc("GET /api/status", p.handleStatus)
	p.mux.HandleFunc("POST /api/config", p.handleConfig)
	p.mux.HandleFunc("POST /api/reset", p.handleReset)
	p.mux.HandleFunc("POST /api/reset-distance", p.handleResetDistance)
	p.mux.HandleFunc("POST /api/set-battery", p.handleSetBattery)
	return p
}

// Handler returns the portal's HTTP handler.
func (p *Portal) Handler() http.Handler { return p.mux }

// Start serves the portal on addr until Shutdown. Blocks; run in its own
// goroutine.
func (p *Portal) Start(addr string) error {
	p.server = &http.Server{
		Addr:         addr,
		Handler:      p.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	p.logger.Printf("portal: listening on %s", addr)
	if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("portal: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (p *Portal) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func (p *Portal) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (p *Portal) handleStatus(w http.ResponseWriter, _ *http.Request) {
	conn := p.store.ConnectionState()
	values := p.store.Values()
	p.writeJSON(w, map[string]any{
		"apName": p.cfg.APName(),
		"config": map[string]any{
			"ssid":     p.cfg.WifiSSID(),
			"mqttHost": p.cfg.MQTTHost(),
			"mqttPort": p.cfg.MQTTPort(),
			"deviceId": p.cfg.DeviceID(),
		},
		"status": map[string]any{
			"wifiConnected":     conn.WifiConnected,
			"mqttConnected":     conn.BusConnected,
			"bleStarted":        p.store.BleStarted(),
			"deviceType":        p.store.DeviceType().String(),
			"ipAddress":         conn.IPAddress,
			"treadmillDistance": values.TreadmillDistance,
			"batteryLevel":      values.BatteryLevel,
		},
	})
}

func (p *Portal) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
		MQTTHost string `json:"mqtt_host"`
		MQTTPort uint16 `json:"mqtt_port"`
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.SSID == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}
	if req.MQTTPort == 0 {
		req.MQTTPort = 1883
	}

	p.cfg.SetWifiCredentials(req.SSID, req.Password)
	p.cfg.SetMQTTConfig(req.MQTTHost, req.MQTTPort)
	p.cfg.SetDeviceID(req.DeviceID)
	if err := p.cfg.Save(); err != nil {
		p.logger.Printf("portal: saving config: %v", err)
		http.Error(w, "failed to persist configuration", http.StatusInternalServerError)
		return
	}

	p.wifi.Reconnect()
	p.logger.Printf("portal: configuration updated, SSID %q", req.SSID)
	p.writeJSON(w, map[string]any{"saved": true})
}

func (p *Portal) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := p.cfg.Clear(); err != nil {
		p.logger.Printf("portal: clearing config: %v", err)
		http.Error(w, "failed to clear configuration", http.StatusInternalServerError)
		return
	}
	p.logger.Print("portal: factory reset requested, restarting")
	p.writeJSON(w, map[string]any{"reset": true})
	p.restart()
}

func (p *Portal) handleResetDistance(w http.ResponseWriter, _ *http.Request) {
	p.store.ResetTreadmillDistance()
	p.writeJSON(w, map[string]any{"distance": 0})
}

func (p *Portal) handleSetBattery(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Level *int `json:"level"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	level := 100
	if req.Level != nil {
		level = *req.Level
	}
	p.store.SetBattery(level)
	p.writeJSON(w, map[string]any{"batteryLevel": p.store.Values().BatteryLevel})
}

func (p *Portal) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.logger.Printf("portal: writing response: %v", err)
	}
}
