// Copyright (c) 2026, Google LLC All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/go-tpm-emulator/emulator"
	"github.com/google/go-tpm-emulator/internal/config"
	"github.com/google/go-tpm-emulator/internal/logging"
	"github.com/google/go-tpm-emulator/internal/metrics"
	"github.com/google/go-tpm-emulator/transport"
	"github.com/google/go-tpm-emulator/transport/mssim"
	"github.com/google/go-tpm-emulator/transport/uds"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// serveFlags are command line overrides for the config file.
type serveFlags struct {
	config config.Config
	path   string
}

func newServeCommand() *cobra.Command {
	var f serveFlags
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an emulated TPM",
		Long: `Serves an emulated TPM until interrupted. Settings come from the config
file given with --config (TOML or YAML), overridden by any flags set.
SIGUSR1 toggles debug logging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.path, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	flags.StringVarP(&f.config.Transport, "transport", "t", defaults.Transport, "Transport to serve: uds or mssim")
	flags.StringVar(&f.config.SocketPath, "socket", defaults.SocketPath, "Unix socket path for the uds transport")
	flags.StringVar(&f.config.CommandAddress, "command-addr", defaults.CommandAddress, "Command port address for the mssim transport")
	flags.StringVar(&f.config.PlatformAddress, "platform-addr", defaults.PlatformAddress, "Platform port address for the mssim transport")
	flags.StringVar(&f.config.MetricsAddress, "metrics-addr", defaults.MetricsAddress, "Address to serve Prometheus metrics on; empty disables them")
	flags.StringVar(&f.config.LogLevel, "log-level", defaults.LogLevel, "Log level")
	flags.StringVar(&f.config.LogFormat, "log-format", defaults.LogFormat, "Log format: text or json")
	flags.BoolVar(&f.config.RequireStartup, "require-startup", defaults.RequireStartup, "Reject commands sent before TPM2_Startup")
	flags.BoolVar(&f.config.PowerOn, "power-on", defaults.PowerOn, "Start the mssim TPM powered on")
	flags.StringVar(&f.config.Manufacturer, "manufacturer", defaults.Manufacturer, "TPM_PT_MANUFACTURER as a vendor ID or integer")
	return cmd
}

// resolve loads the config file, if any, and applies the flags that were set
// explicitly.
func (f *serveFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.path != "" {
		var err error
		if cfg, err = config.Load(f.path); err != nil {
			return config.Config{}, err
		}
	}
	flags := cmd.Flags()
	for name, apply := range map[string]func(){
		"transport":       func() { cfg.Transport = f.config.Transport },
		"socket":          func() { cfg.SocketPath = f.config.SocketPath },
		"command-addr":    func() { cfg.CommandAddress = f.config.CommandAddress },
		"platform-addr":   func() { cfg.PlatformAddress = f.config.PlatformAddress },
		"metrics-addr":    func() { cfg.MetricsAddress = f.config.MetricsAddress },
		"log-level":       func() { cfg.LogLevel = f.config.LogLevel },
		"log-format":      func() { cfg.LogFormat = f.config.LogFormat },
		"require-startup": func() { cfg.RequireStartup = f.config.RequireStartup },
		"power-on":        func() { cfg.PowerOn = f.config.PowerOn },
		"manufacturer":    func() { cfg.Manufacturer = f.config.Manufacturer },
	} {
		if flags.Changed(name) {
			apply()
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	baseLevel := logger.GetLevel()
	log := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, unix.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				log.Warnf("SIGUSR1: log level is now %v", logging.ToggleDebug(logger, baseLevel))
			}
		}
	}()

	if cfg.MetricsAddress != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddress, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	exec := transport.NewExecutor(transport.Config{
		Name: cfg.Transport,
		Emulator: emulator.Options{
			RequireStartup: cfg.RequireStartup,
			Manufacturer:   cfg.ManufacturerID(),
		},
		PoweredOn: cfg.Transport == config.TransportUDS || cfg.PowerOn,
		Log:       log,
	})

	switch cfg.Transport {
	case config.TransportUDS:
		l, err := uds.Listen(cfg.SocketPath)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
		}
		return uds.NewServer(exec, log).Serve(ctx, l)
	case config.TransportMSSIM:
		cmdL, err := net.Listen("tcp", cfg.CommandAddress)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.CommandAddress, err)
		}
		platL, err := net.Listen("tcp", cfg.PlatformAddress)
		if err != nil {
			cmdL.Close()
			return fmt.Errorf("listen on %s: %w", cfg.PlatformAddress, err)
		}
		return mssim.NewServer(exec, log).Serve(ctx, cmdL, platL)
	default:
		return fmt.Errorf("%w: unknown transport %q", config.ErrInvalid, cfg.Transport)
	}
}

// serveMetrics exports Prometheus metrics on addr until the returned function
// is called.
func serveMetrics(addr string, log *logrus.Entry) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", l.Addr().String()).Info("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
