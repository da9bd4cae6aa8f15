// File: cmd/wth-relay/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hioload-wth/control"
	wthlog "github.com/momentics/hioload-wth/internal/logging"
	"github.com/momentics/hioload-wth/relay"
	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type runFlags struct {
	config          string
	network         string
	listen          string
	upstreamNetwork string
	upstream        string
	metricsListen   string
	logLevel        string
}

func runCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the relay",
		Long: `Start the relay. Settings come from the --config file, then from
flags, which take precedence. SIGHUP reloads the log level from the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.config)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "TOML configuration file")
	fl.StringVar(&f.network, "network", "", "downstream network: tcp, unix or abstract")
	fl.StringVarP(&f.listen, "listen", "l", "", "downstream listen address")
	fl.StringVar(&f.upstreamNetwork, "upstream-network", "", "upstream network: tcp, unix or abstract")
	fl.StringVarP(&f.upstream, "upstream", "u", "", "upstream server address")
	fl.StringVar(&f.metricsListen, "metrics-listen", "", "HTTP address for /metrics and /debug/state")
	fl.StringVar(&f.logLevel, "log-level", "", "CRITICAL, ERROR, WARNING, NOTICE, INFO or DEBUG")
	return cmd
}

// loadConfig reads the file (if any) and applies explicitly set flags.
func loadConfig(cmd *cobra.Command, f *runFlags) (*control.Config, error) {
	cfg := control.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = control.LoadConfig(f.config); err != nil {
			return nil, err
		}
	}
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("network", &cfg.Relay.Network, f.network)
	set("listen", &cfg.Relay.Listen, f.listen)
	set("upstream-network", &cfg.Relay.UpstreamNetwork, f.upstreamNetwork)
	set("upstream", &cfg.Relay.Upstream, f.upstream)
	set("metrics-listen", &cfg.Metrics.Listen, f.metricsListen)
	set("log-level", &cfg.LogLevel, f.logLevel)

	if err := cfg.ValidateRelay(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(parent context.Context, cfg *control.Config, path string) error {
	if parent == nil {
		parent = context.Background()
	}
	log := wthlog.Setup("wth-relay", wthlog.ParseLevel(cfg.LogLevel, logging.INFO))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := control.NewStore(cfg, path)
	store.OnReload(func(old, cur *control.Config) {
		if old.LogLevel != cur.LogLevel {
			logging.SetLevel(wthlog.ParseLevel(cur.LogLevel, logging.INFO), "")
			log.Noticef("log level %s -> %s", old.LogLevel, cur.LogLevel)
		}
	})
	go watchHangup(ctx, store, log)

	reg := prometheus.NewRegistry()
	metrics := control.NewMetrics(control.WithRegistry(reg), control.WithNamespace(cfg.Metrics.Namespace))

	srv, err := relay.NewServer(relay.Config{
		Network:         cfg.Relay.Network,
		Listen:          cfg.Relay.Listen,
		UpstreamNetwork: cfg.Relay.UpstreamNetwork,
		Upstream:        cfg.Relay.Upstream,
		RingCapacity:    cfg.RingCapacity,
		MaxBacklog:      cfg.Relay.MaxBacklog,
	}, relay.WithMetrics(metrics), relay.WithLogger(log))
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		probes := control.NewDebugProbes()
		probes.RegisterProbe("relay.sessions", func() any { return srv.Sessions() })
		probes.RegisterProbe("relay.config", func() any { return store.Snapshot() })

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.Handle("/debug/state", probes)
		hs := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics endpoint: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = hs.Shutdown(sctx)
		}()
		log.Infof("metrics on http://%s/metrics", cfg.Metrics.Listen)
	}

	err = srv.Serve(ctx)
	log.Notice("relay stopped")
	return err
}

// watchHangup reloads the configuration file on SIGHUP.
func watchHangup(ctx context.Context, store *control.Store, log *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				log.Errorf("reload: %v", err)
			}
		}
	}
}
