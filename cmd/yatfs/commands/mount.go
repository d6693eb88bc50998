// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/yatfs/yatfs/cmd/yatfs/cli"
	"github.com/yatfs/yatfs/lib/config"
	"github.com/yatfs/yatfs/lib/fuse"
	"github.com/yatfs/yatfs/lib/routine"
	"github.com/yatfs/yatfs/lib/version"
)

type mountParams struct {
	Config             string `flag:"config" desc:"YAML config file (default: $YATFS_CONFIG, else built-in defaults)"`
	DefaultPermissions bool   `flag:"default_permissions" desc:"let the kernel enforce mode bits"`
	AllowOther         bool   `flag:"allow_other" desc:"allow other users to access the mount"`
	AllowRoot          bool   `flag:"allow_root" desc:"allow root to access the mount"`
	Debug              bool   `flag:"debug" desc:"log every FUSE request"`
	Sources            sourceFlags
}

func (a *app) mountCommand() *cli.Command {
	var params mountParams
	return &cli.Command{
		Name:    "mount",
		Summary: "Serve the inode database through FUSE",
		Description: `Mount the inode database at <mountpoint> and serve file contents from
torrent payload. Runs until SIGINT or SIGTERM, then unmounts. Metainfo
for registered files comes from --torrent_dir, --torrent_callback, or
both (directory first).`,
		Usage: "yatfs --db_path <path> mount [flags] <mountpoint>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mount", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one mountpoint, got %d arguments", len(args))
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runMount(ctx, args[0], &params)
		},
	}
}

// loadConfig reads --config, else $YATFS_CONFIG, else the defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

// runMount serves until ctx is done or the mount goes away.
func (a *app) runMount(ctx context.Context, mountpoint string, params *mountParams) error {
	logger, err := a.logger("mount")
	if err != nil {
		return err
	}
	logger = logger.With("mountpoint", mountpoint)

	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	source, err := params.Sources.source(a.registry)
	if err != nil {
		return err
	}
	if source == nil {
		return errors.New("one of --torrent_dir or --torrent_callback is required")
	}

	store, err := a.openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := newMetricsRegistry()
	controller, err := routine.New(routine.Options{
		Store:      store,
		Source:     source,
		Config:     cfg,
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := controller.Close(); err != nil {
			logger.Warn("closing fetch routine", "error", err)
		}
	}()

	filesystem, err := fuse.New(fuse.Options{
		Mountpoint:         mountpoint,
		Controller:         controller,
		DefaultPermissions: params.DefaultPermissions,
		AllowOther:         params.AllowOther,
		AllowRoot:          params.AllowRoot,
		Debug:              params.Debug,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, registry, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if err := filesystem.Mount(); err != nil {
		return err
	}

	unmounted := make(chan struct{})
	go func() {
		filesystem.Wait()
		close(unmounted)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return filesystem.Unmount()
	case <-unmounted:
		logger.Info("filesystem unmounted externally")
		return nil
	}
}

// newMetricsRegistry returns a registry with the process collectors
// and a build info gauge.
func newMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "yatfs",
		Name:      "build_info",
		Help:      "Always 1; labelled with the running version.",
	}, []string{"version", "commit"}).WithLabelValues(version.Version, version.Commit()).Set(1)
	return registry
}

// serveMetrics exposes registry at /metrics on addr. The returned
// function stops the server.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}, nil
}
