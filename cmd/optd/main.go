package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/optd"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
)

func main() {
	var configPath string
	var grpcAddr string
	var httpAddr string
	var logLevel string
	var traceStdout bool

	flag.StringVar(&configPath, "config", "", "daemon config file (YAML); defaults are used when empty")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")
	flag.BoolVar(&traceStdout, "trace-stdout", false, "export trace spans to stdout")
	flag.Parse()

	cfg := config.DefaultDaemonConfig()
	if configPath != "" {
		loaded, err := config.LoadDaemonConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if grpcAddr != "" {
		cfg.GRPCAddr = grpcAddr
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if traceStdout {
		cfg.Tracing.Stdout = true
	}

	logger.SetDefault(logger.NewFormat(cfg.LogFormat, cfg.LogLevel, os.Stdout))

	if err := run(cfg); err != nil {
		logger.Error("optd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.DaemonConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	opts, err := controllerOptions(cfg)
	if err != nil {
		return err
	}

	reg, closeRemotes, err := buildRegistry(cfg.Surrogates)
	if err != nil {
		return err
	}
	defer closeRemotes()
	if cfg.Surrogates.ReferenceSurrogates() {
		opts.BaseParameters = design.Merge(nil, surrogate.DefaultVesselParameters)
	}

	rules, err := buildRules(ctx, cfg.RulesDir)
	if err != nil {
		return err
	}

	store, err := optd.OpenBadgerResultStore(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("result store close error", "error", err)
		}
	}()
	opts.Results = store

	controller := optd.NewController(reg, rules, opts)
	logger.Info("controller ready",
		"surrogates", reg.Names(),
		"max_concurrent_jobs", opts.MaxConcurrentJobs,
		"store_path", cfg.StorePath)

	// TODO: Configure gRPC server security (e.g., TLS, authentication)
	// before exposing this service outside a trusted network.
	grpcServer := grpc.NewServer()
	optd.RegisterOptimizerServer(grpcServer, controller)
	surrogate.RegisterRegistryServer(grpcServer, reg)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           optd.NewHTTPServer(controller).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// running jobs end as cancelled/shutdown and are persisted before the
	// transports go away, so streaming clients see their terminal snapshot
	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Error("controller shutdown error", "error", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	return nil
}

// controllerOptions translates the daemon configuration
func controllerOptions(cfg *config.DaemonConfig) (optd.Options, error) {
	pacing, err := cfg.Pacing()
	if err != nil {
		return optd.Options{}, err
	}
	evalTTL, err := cfg.EvaluationCacheTTL()
	if err != nil {
		return optd.Options{}, err
	}
	relTTL, err := cfg.ReliabilityCacheTTL()
	if err != nil {
		return optd.Options{}, err
	}
	return optd.Options{
		MaxConcurrentJobs:   cfg.MaxConcurrentJobs,
		Pacing:              pacing,
		EvalWorkers:         cfg.Evaluation.Workers,
		EvalCacheTTL:        evalTTL,
		ReliabilityWorkers:  cfg.Reliability.Workers,
		MaxSamples:          cfg.Reliability.MaxSamples,
		ReliabilityCacheTTL: relTTL,
		Notifier:            optd.NewNotifier(time.Duration(cfg.Notifier.TimeoutMs) * time.Millisecond),
	}, nil
}

// buildRules loads the rule-set directory and keeps it in sync with the
// files on disk. Without a directory the registry is empty.
func buildRules(ctx context.Context, dir string) (*constraint.RuleRegistry, error) {
	if dir == "" {
		return constraint.NewRuleRegistry()
	}
	rules, err := constraint.LoadRuleRegistry(dir)
	if err != nil {
		return nil, err
	}
	if err := rules.Watch(ctx); err != nil {
		return nil, err
	}
	logger.Info("rule sets loaded", "dir", dir, "count", len(rules.List()))
	return rules, nil
}
