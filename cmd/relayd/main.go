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

	"governance_relayer/internal/app/service"
	"governance_relayer/internal/infrastructure/configloader"
	"governance_relayer/internal/infrastructure/httpclient"
	"governance_relayer/internal/infrastructure/metrics"
	clientprovider "governance_relayer/internal/infrastructure/network/client"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"
	"governance_relayer/internal/infrastructure/registry"
	"governance_relayer/internal/infrastructure/restapi"
	"governance_relayer/internal/infrastructure/sequence"
	"governance_relayer/internal/infrastructure/signer"
	"governance_relayer/internal/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yml", "path to the application config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configloader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	zapLogger, err := logger.Init(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Relay server starting", "main_network", cfg.Relay.MainNetwork, "side_network", cfg.Relay.SideNetwork)
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	appLogger := logger.NewSlogAdapter()

	s, err := signer.LoadFromEnv(cfg.Signer.EnvVar, appLogger.Info)
	if err != nil {
		logger.Fatal("Relay needs a signing key", "error", err)
	}

	abis, err := networkdefinition.NewContractABIProvider(logger.Named("contracts"), cfg.Contracts.MainArtifact, cfg.Contracts.SideArtifact)
	if err != nil {
		logger.Fatal("Failed to load contract ABIs", "error", err)
	}

	store, err := registry.Open(ctx, cfg.Registry, logger.Named("registry"))
	if err != nil {
		logger.Fatal("Failed to open network registry", "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close registry", "error", err)
		}
	}()

	prom := metrics.NewPrometheus()
	clients := clientprovider.NewEVMClientProvider(cfg.RpcClient, s, abis, logger.Named("chain"))
	defer clients.Close()

	fetcher := httpclient.NewAttestationClient(cfg.Attestation, zapLogger)
	poller := service.NewAttestationPoller(fetcher, cfg.Attestation, prom, logger.Named("poller"))
	relay := service.NewRelayService(store, clients, sequence.NewBridgeLogExtractor(), poller,
		logger.Named("relay"), cfg.Relay.MainNetwork, cfg.Relay.SideNetwork)

	opts := restapi.RouterOptions{}
	if cfg.Metrics.Enabled {
		opts.MetricsHandler = prom.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Swagger.Enabled {
		opts.SwaggerSpecPath = cfg.Swagger.SpecPath
	}
	router := restapi.SetupRouter(restapi.NewRelayHandler(relay, prom, logger.Named("api")), opts)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Relay server stopped with error", "error", err)
		return
	}
	logger.Info("Relay server stopped")
}
