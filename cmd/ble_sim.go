package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blesim/ble-sim/internal/ble"
	"github.com/blesim/ble-sim/internal/sim"
)

func main() {
	configPath := pflag.String("config", "ble-sim.yaml", "path of the persisted device configuration")
	listenAddr := pflag.String("listen", ":8080", "address of the HTTP setup portal")
	logFile := pflag.String("log-file", "", "also write logs to this file, with rotation")
	bleBackend := pflag.String("ble", "sim", "BLE backend: sim or adapter (host Bluetooth)")
	pflag.Parse()

	logger := newLogger(*logFile)

	var stack ble.Stack
	switch *bleBackend {
	case "sim":
		// sim.New defaults to the simulated stack.
	case "adapter":
		stack = ble.NewAdapterStack(logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown --ble backend %q\n", *bleBackend)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A factory reset ends the current App run; build a fresh one and keep
	// going, like the device rebooting.
	for {
		app := sim.New(sim.Options{
			ConfigPath: *configPath,
			PortalAddr: *listenAddr,
			Stack:      stack,
			Logger:     logger,
		})
		err := app.Run(ctx)
		if errors.Is(err, sim.ErrRestartRequested) {
			continue
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatalf("ble-sim: %v", err)
		}
		return
	}
}

func newLogger(logFile string) *log.Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(out, "", log.LstdFlags|log.Lmsgprefix)
}
