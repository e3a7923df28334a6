package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/chain"
	"github.com/cfchain/indexer/internal/config"
	"github.com/cfchain/indexer/internal/metrics"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// errInterrupted signals main to exit 130, matching the original
// cli.py's KeyboardInterrupt -> sys.exit(0) intent adjusted to the
// conventional shell signal-exit-code contract.
var errInterrupted = errors.New("interrupted")

// signalContext returns a context cancelled on SIGINT/SIGTERM; the
// actions that use it return errInterrupted once it is cancelled.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, stop
}

// env bundles the dependencies every subcommand needs, built once
// from process configuration.
type env struct {
	cfg *config.Config
	log xlog.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := xlog.New(cfg.LogLevel)
	metrics.MustRegister(prometheus.DefaultRegisterer)
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) openStore() (*store.Store, error) {
	return store.Open(e.cfg.DBURL)
}

func (e *env) dialChain(ctx context.Context) (chain.Client, error) {
	return chain.Dial(ctx, e.cfg.RPCURL, e.cfg.Confirmations, 5, e.log)
}

func (e *env) amqpURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		e.cfg.RabbitMQUser, e.cfg.RabbitMQPassword, e.cfg.RabbitMQHost, e.cfg.RabbitMQPort, e.cfg.RabbitMQVHost)
}

func (e *env) dialBus(ctx context.Context) (*bus.Conn, error) {
	return bus.Dial(ctx, e.amqpURL(), e.log)
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// maybeServeMetrics starts a /metrics endpoint when METRICS_ADDR is
// set, supplementing spec.md (silent on metrics transport) without
// touching indexing semantics — see SPEC_FULL.md §3.9.
func (e *env) maybeServeMetrics() {
	if e.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(e.cfg.MetricsAddr, mux); err != nil {
			e.log.Error("metrics server stopped", "err", err)
		}
	}()
	e.log.Info("metrics server listening", "addr", e.cfg.MetricsAddr)
}
