// gapd is the GAP core daemon: it owns PeerCache and LeConnectionManager,
// restores and persists bonding data, and serves a Prometheus metrics
// endpoint plus a small admin HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gapcore/internal/bonds"
	"github.com/dantte-lp/gapcore/internal/config"
	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/lecm"
	"github.com/dantte-lp/gapcore/internal/gap/peercache"
	gapmetrics "github.com/dantte-lp/gapcore/internal/metrics"
	"github.com/dantte-lp/gapcore/internal/server"
	appversion "github.com/dantte-lp/gapcore/internal/version"
)

// shutdownTimeout bounds how long the HTTP servers get to drain active
// connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// peerCountPollInterval is how often the peer-count gauges are refreshed
// from a PeerCache snapshot (see internal/metrics: no single call site is
// analogous to a session create/destroy pair, so gauges are polled rather
// than updated per mutation).
const peerCountPollInterval = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("gapd starting",
		slog.String("version", appversion.Version),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := gapmetrics.NewCollector(reg)

	cache := peercache.New(
		peercache.WithCacheTimeout(cfg.GAP.CacheTimeout),
		peercache.WithLogger(logger),
	)

	if err := restoreBonds(cfg.Bonds.Path, cache, logger); err != nil {
		logger.Error("failed to restore bonded peers", slog.String("error", err.Error()))
		return 1
	}
	cache.OnPeerBonded(func(gap.Peer) {
		if err := bonds.Save(cfg.Bonds.Path, cache.Snapshot()); err != nil {
			logger.Warn("failed to persist bonds", slog.String("error", err.Error()))
		}
	})

	if _, err := cfg.GAP.Mode(); err != nil {
		logger.Error("invalid security mode", slog.String("error", err.Error()))
		return 1
	}

	// No real HCI/L2CAP/GATT transport is wired here: that layer is
	// explicitly out of this core's scope, and a host linking a real
	// controller driver replaces transport below with its own
	// implementation of hci.Connector/Interrogator/ParamUpdater,
	// lecm.Discovery, gatt.Client, and l2cap.Signaling.
	transport := newUnimplementedTransport(logger)

	mgr := lecm.New(cache, transport, transport, transport,
		lecm.WithInterrogator(transport),
		lecm.WithParamUpdater(transport),
		lecm.WithDiscovery(transport),
		lecm.WithMaxConnectionAttempts(cfg.GAP.MaxConnectionAttempts),
		lecm.WithScanTimeout(cfg.GAP.ScanTimeout),
		lecm.WithCentralPause(cfg.GAP.ConnectionPauseCentral),
		lecm.WithPeripheralPause(cfg.GAP.ConnectionPausePeripheral),
		lecm.WithLogger(logger),
		lecm.WithMetrics(collector),
	)

	if err := runServers(cfg, cache, mgr, reg, collector, logger, *configPath, logLevel); err != nil {
		logger.Error("gapd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("gapd stopped")
	return 0
}

// runServers wires the manager's security mode, starts its executor, serves
// the admin HTTP API and metrics endpoint, and blocks until a shutdown
// signal arrives, using an errgroup the same way cmd/gobfd supervises its
// gRPC/metrics servers.
func runServers(
	cfg *config.Config,
	cache *peercache.Cache,
	mgr *lecm.Manager,
	reg *prometheus.Registry,
	collector *gapmetrics.Collector,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr.Start(ctx)
	defer mgr.Close()

	mode, err := cfg.GAP.Mode()
	if err != nil {
		return fmt.Errorf("parse security mode: %w", err)
	}
	mgr.SetSecurityMode(mode)
	reconcileAutoConnect(ctx, cfg, mgr, logger)

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := newAdminServer(cfg.HTTP, cache, mgr, logger)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
	g.Go(func() error {
		logger.Info("admin HTTP API listening", slog.String("addr", cfg.HTTP.Addr))
		return listenAndServe(gCtx, &lc, adminSrv, cfg.HTTP.Addr)
	})

	g.Go(func() error {
		return pollPeerCounts(gCtx, cache, collector)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, mgr, logger)
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, cfg, cache, logger, metricsSrv, adminSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// pollPeerCounts refreshes the peer-count gauges every
// peerCountPollInterval until ctx is canceled.
func pollPeerCounts(ctx context.Context, cache *peercache.Cache, collector *gapmetrics.Collector) error {
	ticker := time.NewTicker(peerCountPollInterval)
	defer ticker.Stop()

	refresh := func() {
		peers := cache.Snapshot()
		var bonded, temporary int
		for _, p := range peers {
			if p.Bonded() {
				bonded++
			}
			if p.Temporary {
				temporary++
			}
		}
		collector.SetPeerCounts(len(peers), bonded, temporary)
	}
	refresh()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refresh()
		}
	}
}

// reconcileAutoConnect parses cfg.GAP.AutoConnectPeers and hands the
// result to LeConnectionManager.ReconcileAutoConnect. Unparsable entries
// are logged and skipped rather than aborting the whole reconciliation.
func reconcileAutoConnect(ctx context.Context, cfg *config.Config, mgr *lecm.Manager, logger *slog.Logger) {
	if len(cfg.GAP.AutoConnectPeers) == 0 {
		return
	}
	ids := make([]gap.PeerId, 0, len(cfg.GAP.AutoConnectPeers))
	for _, s := range cfg.GAP.AutoConnectPeers {
		id, err := gap.ParsePeerId(s)
		if err != nil {
			logger.Error("invalid auto_connect_peers entry, skipping", slog.String("value", s), slog.String("error", err.Error()))
			continue
		}
		ids = append(ids, id)
	}
	mgr.ReconcileAutoConnect(ctx, ids)
}

// -------------------------------------------------------------------------
// SIGHUP reload
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	mgr *lecm.Manager,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(ctx, configPath, logLevel, mgr, logger)
		}
	}
}

func reloadConfig(ctx context.Context, configPath string, logLevel *slog.LevelVar, mgr *lecm.Manager, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)
	logger.Info("configuration reloaded", slog.String("old_log_level", oldLevel.String()), slog.String("new_log_level", newLevel.String()))

	if mode, err := newCfg.GAP.Mode(); err == nil {
		mgr.SetSecurityMode(mode)
	}
	reconcileAutoConnect(ctx, newCfg, mgr, logger)
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, cfg *config.Config, cache *peercache.Cache, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	if err := bonds.Save(cfg.Bonds.Path, cache.Snapshot()); err != nil {
		logger.Warn("failed to persist bonds on shutdown", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Setup helpers
// -------------------------------------------------------------------------

func restoreBonds(path string, cache *peercache.Cache, logger *slog.Logger) error {
	records, err := bonds.Load(path)
	if err != nil {
		return fmt.Errorf("load bonds from %s: %w", path, err)
	}
	restored := 0
	for _, rec := range records {
		if cache.AddBondedPeer(rec) {
			restored++
		}
	}
	logger.Info("restored bonded peers", slog.Int("count", restored), slog.Int("total", len(records)), slog.String("path", path))
	return nil
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newAdminServer(cfg config.HTTPConfig, cache *peercache.Cache, mgr *lecm.Manager, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(cache, mgr, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
