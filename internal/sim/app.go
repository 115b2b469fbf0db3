package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/blesim/ble-sim/internal/ble"
	"github.com/blesim/ble-sim/internal/bus"
	"github.com/blesim/ble-sim/internal/clock"
	"github.com/blesim/ble-sim/internal/config"
	"github.com/blesim/ble-sim/internal/control"
	"github.com/blesim/ble-sim/internal/portal"
	"github.com/blesim/ble-sim/internal/safego"
	"github.com/blesim/ble-sim/internal/state"
	"github.com/blesim/ble-sim/internal/wifi"
)

// ErrRestartRequested is returned by Run after a factory reset; the caller
// should build a fresh App and run it again.
var ErrRestartRequested = errors.New("restart requested")

const defaultTickInterval = 20 * time.Millisecond

// Options configures an App. Zero-value fields get working defaults: the
// simulated BLE stack and radio, the paho bus client, the system clock, and
// the standard logger.
type Options struct {
	ConfigPath   string
	PortalAddr   string
	Stack        ble.Stack
	Radio        wifi.Radio
	BusClient    bus.Client
	Clock        clock.Clock
	Logger       *log.Logger
	TickInterval time.Duration
}

// App wires the simulator together and drives the cooperative main loop.
// Each tick advances WiFi, then the bus session, then the BLE peripheral;
// only the HTTP portal runs on its own goroutines.
type App struct {
	logger *log.Logger
	cfg    *config.Store
	store  *state.Store

	wifiMgr *wifi.Manager
	busMgr  *bus.Manager
	bleMgr  *ble.Manager
	portal  *portal.Portal

	portalAddr   string
	tickInterval time.Duration

	restartOnce sync.Once
	restartCh   chan struct{}
}

// New builds an App from the given options.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "ble-sim.yaml"
	}
	if opts.Stack == nil {
		opts.Stack = ble.NewSimStack(logger)
	}
	if opts.Radio == nil {
		opts.Radio = wifi.NewSimRadio(logger)
	}
	if opts.BusClient == nil {
		opts.BusClient = bus.NewPahoClient(logger)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}

	cfg := config.NewStore(opts.ConfigPath, logger)
	cfg.Load()
	store := state.NewStore()

	bleMgr := ble.NewManager(store, opts.Stack, opts.Clock, logger)
	router := control.NewRouter(store, bleMgr, logger)

	app := &App{
		logger:       logger,
		cfg:          cfg,
		store:        store,
		wifiMgr:      wifi.NewManager(cfg, store, opts.Radio, opts.Clock, logger),
		busMgr:       bus.NewManager(cfg, store, router, opts.BusClient, opts.Clock, logger),
		bleMgr:       bleMgr,
		portalAddr:   opts.PortalAddr,
		tickInterval: opts.TickInterval,
		restartCh:    make(chan struct{}),
	}
	app.portal = portal.New(cfg, store, app.wifiMgr, app.RequestRestart, logger)
	return app
}

// Store exposes the device state, mainly for tests driving the App directly.
func (a *App) Store() *state.Store { return a.store }

// RequestRestart asks the running App to stop with ErrRestartRequested.
// Safe to call from any goroutine, any number of times.
func (a *App) RequestRestart() {
	a.restartOnce.Do(func() { close(a.restartCh) })
}

// Run starts the portal and drives the main loop until the context is
// cancelled or a restart is requested.
func (a *App) Run(ctx context.Context) error {
	a.logger.Printf("ble-sim starting, device id %s", a.cfg.DeviceID())

	if err := a.bleMgr.Setup(); err != nil {
		return err
	}
	a.wifiMgr.Setup()

	portalErr := make(chan error, 1)
	if a.portalAddr != "" {
		safego.Go(a.logger, func() { portalErr <- a.portal.Start(a.portalAddr) })
	}

	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()
	defer a.shutdown()

	for {
		select {
		case <-ctx.Done():
			a.logger.Print("ble-sim stopping")
			return ctx.Err()
		case <-a.restartCh:
			a.logger.Print("ble-sim restarting")
			return ErrRestartRequested
		case err := <-portalErr:
			return err
		case <-ticker.C:
			a.tick()
		}
	}
}

// tick advances every manager by one loop iteration.
func (a *App) tick() {
	a.wifiMgr.Tick()
	a.busMgr.Tick()
	a.bleMgr.Tick()
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.portal.Shutdown(shutdownCtx); err != nil {
		a.logger.Printf("portal shutdown: %v", err)
	}
	a.busMgr.Close()
	a.bleMgr.Stop()
}
