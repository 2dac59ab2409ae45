package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/karollnt/goldstory-backend/api"
	"github.com/karollnt/goldstory-backend/chain"
	"github.com/karollnt/goldstory-backend/config"
	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/engine"
	"github.com/karollnt/goldstory-backend/listener"
	"github.com/karollnt/goldstory-backend/logger"
	"github.com/karollnt/goldstory-backend/notify"
	"github.com/karollnt/goldstory-backend/reconciler"
	"github.com/karollnt/goldstory-backend/router"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
}

func startCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the payment distribution daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configFile)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print goldstoryd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Name:       goldstoryd\n")
			fmt.Printf("Version:    %s\n", Version)
			fmt.Printf("Go Version: %s\n", runtime.Version())
		},
	}
}

// runStart wires the full pipeline and blocks until a shutdown signal. The
// health endpoint comes up before anything that can fail, so operators can
// distinguish a dead process from a degraded one.
func runStart(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("version", Version).Msg("starting goldstoryd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var database *db.DB
	if cfg.DataDir != "" {
		database, err = db.OpenFileDB(cfg.DataDir, "goldstory.db", true)
		if err != nil {
			return fmt.Errorf("failed to open case log database: %w", err)
		}
		defer database.Close()
	} else {
		log.Warn().Msg("no data directory configured, case log disabled")
	}

	apiServer := api.NewServer(log, cfg.ServerPort, database)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	defer apiServer.Stop()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" {
		telegram, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
		if err != nil {
			return fmt.Errorf("failed to configure telegram notifier: %w", err)
		}
		notifier = telegram
	} else {
		log.Warn().Msg("telegram not configured, notifications disabled")
	}

	if err := cfg.Validate(); err != nil {
		notifier.Notify(ctx, fmt.Sprintf("❌ goldstoryd cannot start: %v", err))
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rpc, err := chain.NewRPCClient(cfg.RPCURLs, cfg.ChainID, log)
	if err != nil {
		return fmt.Errorf("failed to connect to ledger: %w", err)
	}
	defer rpc.Close()

	settlementAsset := ethcommon.HexToAddress(cfg.SettlementAsset)
	oracle := chain.NewOracle(rpc, settlementAsset, log)

	submitter, err := chain.NewSubmitter(rpc, cfg.OperatorPrivateKey, cfg.ChainID, log)
	if err != nil {
		return fmt.Errorf("failed to load operator key: %w", err)
	}

	transfers := chain.NewTransferExecutor(rpc, oracle, submitter, settlementAsset, cfg.Policy, log)
	swaps := chain.NewSwapExecutor(rpc, oracle, submitter, cfg.Policy, log)

	routes, err := router.NewResolver(cfg.RouterURL, cfg.Policy, log)
	if err != nil {
		return fmt.Errorf("failed to configure route resolver: %w", err)
	}

	eng, err := engine.New(engine.Params{
		Oracle:          oracle,
		Transfers:       transfers,
		Swaps:           swaps,
		Routes:          routes,
		Notifier:        notifier,
		Database:        database,
		Policy:          cfg.Policy,
		Operator:        submitter.From(),
		Broker:          ethcommon.HexToAddress(cfg.BrokerAddress),
		SettlementAsset: settlementAsset,
		OutputAsset:     ethcommon.HexToAddress(cfg.OutputAsset),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to build distribution engine: %w", err)
	}

	rec := reconciler.New(rpc, database, notifier,
		time.Duration(cfg.ReconcileIntervalSeconds)*time.Second, log)
	go rec.Start(ctx)

	// Ingestion config problems keep the listener down but leave the rest of
	// the process, health endpoint included, running.
	if err := cfg.ValidateIngestion(); err != nil {
		log.Error().Err(err).Msg("event ingestion disabled")
		notifier.Notify(ctx, fmt.Sprintf("⚠️ goldstoryd started without event ingestion: %v", err))
	} else {
		watcher := listener.New(rpc, eng, database,
			settlementAsset,
			ethcommon.HexToAddress(cfg.ReceiverAddress),
			time.Duration(cfg.EventPollingIntervalSeconds)*time.Second, log)
		go watcher.Start(ctx)
		notifier.Notify(ctx, fmt.Sprintf("🚀 goldstoryd %s watching %s for USDC payments", Version, cfg.ReceiverAddress))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	cancel()
	eng.Wait()
	return nil
}
