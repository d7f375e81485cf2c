package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cdtdelta/checkuser/internal/config"
	"github.com/cdtdelta/checkuser/internal/database"
	"github.com/cdtdelta/checkuser/internal/investigate"
	"github.com/cdtdelta/checkuser/internal/jsonlparser"
	"github.com/cdtdelta/checkuser/internal/logging"
	"github.com/cdtdelta/checkuser/internal/metrics"
	"github.com/cdtdelta/checkuser/internal/token"
	transport "github.com/cdtdelta/checkuser/internal/transport/http"
	"github.com/cdtdelta/checkuser/internal/xff"
)

// parseFlags overlays command-line flags on the environment configuration.
func parseFlags(args []string) (config.Config, error) {
	cfg := config.Load()

	fs := flag.NewFlagSet("checkuserd", flag.ContinueOnError)
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "Database driver (sqlite, postgres)")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Database file path or connection string")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "API listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Metrics listen address")
	fs.StringVar(&cfg.WikiID, "wiki-id", cfg.WikiID, "Wiki instance id tokens are bound to")
	fs.BoolVar(&cfg.InitSchema, "init-schema", cfg.InitSchema, "Create missing tables and indexes on start")
	fs.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "JSON Lines event fixture to load on start")
	fs.BoolVar(&cfg.IndexHints, "index-hints", cfg.IndexHints, "Send index hints with union queries")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, sync, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	openStore := database.OpenStore
	if cfg.InitSchema {
		openStore = database.CreateStore
	}
	store, err := openStore(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	defer store.Close()
	log.Info("store opened", "driver", cfg.Driver, "initSchema", cfg.InitSchema)

	proxies, err := xff.NewProxyList(cfg.SiteProxies)
	if err != nil {
		return fmt.Errorf("parsing site proxies: %w", err)
	}
	resolver := &xff.Resolver{Classifier: proxies, AcceptPrivate: cfg.XFFAcceptPrivate, MaxHops: cfg.MaxHops}

	if cfg.SeedFile != "" {
		if err := seed(ctx, log, store, resolver, cfg.SeedFile); err != nil {
			return err
		}
	}

	codec, err := token.New(cfg.Secret,
		token.WithTTL(cfg.TokenTTL),
		token.WithLogger(log.WithName("token")),
	)
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}
	log.Info("token codec ready", "cipher", codec.Cipher(), "ttl", codec.TTL().String())

	svc := investigate.NewService(store, codec, resolver, cfg.WikiID,
		investigate.WithPageSize(cfg.PageSize, cfg.MaxPageSize),
		investigate.WithIndexHints(cfg.IndexHints),
		investigate.WithMetrics(metrics.NewInvestigationMetrics()),
		investigate.WithLogger(log.WithName("investigate")),
	)

	deps := &transport.ServerDeps{
		Service:            svc,
		Store:              store,
		APIKeys:            cfg.APIKeys,
		Reviewers:          cfg.Reviewers,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Log:                log.WithName("http"),
	}

	apiServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	serve(log, "api", apiServer, errCh)
	serve(log, "metrics", metricsServer, errCh)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		cancel()
		shutdown(log, apiServer, metricsServer)
		return err
	}

	shutdown(log, apiServer, metricsServer)
	return nil
}

func seed(ctx context.Context, log logr.Logger, store jsonlparser.Loader, resolver *xff.Resolver, path string) error {
	if err := jsonlparser.ValidateFile(path); err != nil {
		return fmt.Errorf("seed file %s: %w", path, err)
	}
	res, err := jsonlparser.ReadFile(path, func(n int) {
		log.V(1).Info("reading seed file", "records", n)
	})
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	n, err := jsonlparser.Load(ctx, store, res.Records, resolver)
	if err != nil {
		return fmt.Errorf("loading seed file: %w", err)
	}
	log.Info("seed file loaded", "path", path, "records", n, "excluded", res.Excluded)
	return nil
}

func serve(log logr.Logger, name string, srv *http.Server, errCh chan<- error) {
	go func() {
		log.Info("listening", "server", name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

func shutdown(log logr.Logger, servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error(err, "shutdown failed", "addr", srv.Addr)
		}
	}
}
