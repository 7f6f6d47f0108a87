package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/app/service"
	"governance_relayer/internal/infrastructure/configloader"
	"governance_relayer/internal/infrastructure/httpclient"
	"governance_relayer/internal/infrastructure/metrics"
	clientprovider "governance_relayer/internal/infrastructure/network/client"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"
	"governance_relayer/internal/infrastructure/registry"
	"governance_relayer/internal/infrastructure/sequence"
	"governance_relayer/internal/infrastructure/signer"
	"governance_relayer/internal/pkg/logger"

	"github.com/spf13/cobra"
)

var configPath string

// application holds everything one governance command needs.
type application struct {
	store      port.RegistryStore
	clients    port.ChainClientProvider
	governance port.GovernanceService
}

func newApplication(ctx context.Context, path string) (*application, error) {
	cfg, err := configloader.Load(path)
	if err != nil {
		return nil, err
	}
	zapLogger, err := logger.Init(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	appLogger := logger.NewSlogAdapter()

	// read-only commands work without a key; chain actions fail with a configuration error
	s, err := signer.LoadFromEnv(cfg.Signer.EnvVar, appLogger.Info)
	if err != nil {
		appLogger.Warn("No signer available, chain actions are disabled", "error", err)
	}

	abis, err := networkdefinition.NewContractABIProvider(logger.Named("contracts"), cfg.Contracts.MainArtifact, cfg.Contracts.SideArtifact)
	if err != nil {
		return nil, err
	}

	store, err := registry.Open(ctx, cfg.Registry, logger.Named("registry"))
	if err != nil {
		return nil, err
	}

	nop := metrics.Nop{}
	clients := clientprovider.NewEVMClientProvider(cfg.RpcClient, s, abis, logger.Named("chain"))
	fetcher := httpclient.NewAttestationClient(cfg.Attestation, zapLogger)
	poller := service.NewAttestationPoller(fetcher, cfg.Attestation, nop, logger.Named("poller"))
	governance := service.NewGovernanceService(store, clients, sequence.NewBridgeLogExtractor(), poller, nop, appLogger)

	return &application{store: store, clients: clients, governance: governance}, nil
}

func (a *application) Close() {
	a.clients.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close registry", "error", err)
	}
}

// withApplication builds the application for the duration of one command.
func withApplication(cmd *cobra.Command, run func(ctx context.Context, app *application) error) error {
	ctx := cmd.Context()
	app, err := newApplication(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "govrelay",
		Short: "Drive cross-chain governance actions",
		Long: `govrelay runs one step of the cross-chain governance workflow per invocation.

Actions that emit a bridge message wait for the guardian attestation and queue it on the
emitting network in the registry file. submit-vaa and submit-end-of-voting deliver queued
attestations to the other network.

The signing key is read from the environment variable named by signer.envVar.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yml", "path to the application config")

	for _, ac := range actionCommands() {
		cmd.AddCommand(ac.command())
	}
	cmd.AddCommand(newRecordDeploymentCmd(), newRecoverCmd(), newNetworksCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
