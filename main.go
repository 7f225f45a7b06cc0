// Copyright 2025 Smart Transaction
//
// Blockclock backend entry point. Wires the signature pool, the MySQL
// store, the two chain dispatchers, the mean-time aggregator with its
// ticker, and the HTTP ingress.

package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smart-transaction/blockclock-backend/pkg/callbreaker"
	"github.com/smart-transaction/blockclock-backend/pkg/chain"
	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
	"github.com/smart-transaction/blockclock-backend/pkg/config"
	"github.com/smart-transaction/blockclock-backend/pkg/database"
	"github.com/smart-transaction/blockclock-backend/pkg/meantime"
	"github.com/smart-transaction/blockclock-backend/pkg/referral"
	"github.com/smart-transaction/blockclock-backend/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	logger := log.New(log.Writer(), "[Blockclock] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Fatal: %v", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewClient(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	solverKey, err := parseKey(cfg.SolverPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid solver private key: %w", err)
	}
	validatorKey, err := parseKey(cfg.ValidatorPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid validator private key: %w", err)
	}
	appID, err := parseAppID(cfg.AppID)
	if err != nil {
		return fmt.Errorf("invalid app id: %w", err)
	}

	primary, err := buildDispatcher("primary", cfg.Primary, appID, solverKey, validatorKey, logger)
	if err != nil {
		return err
	}
	secondary, err := buildDispatcher("secondary", cfg.Secondary, appID, solverKey, validatorKey, logger)
	if err != nil {
		return err
	}

	pool := chronicle.NewPool()
	expander := referral.NewExpander(db, nil)
	aggregator := meantime.NewAggregator(pool, cfg.TimeWindow.Std(), expander, primary, secondary, cfg.DryRun, nil)
	ticker := meantime.NewTicker(cfg.TickPeriod.Std(), aggregator, nil)
	go ticker.Run(ctx)

	srv := server.New(cfg.Port, pool, db, cfg.TimeWindow.Std(), nil)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Error shutting down server: %v", err)
	}
	return nil
}

func buildDispatcher(name string, chainCfg config.ChainConfig, appID []byte, solverKey, validatorKey *ecdsa.PrivateKey, logger *log.Logger) (*chain.Dispatcher, error) {
	logger.Printf("Connecting to the %s chain with URL %s ...", name, chainCfg.HTTPChainURL)
	client, err := chain.NewClient(chainCfg.HTTPChainURL, chainCfg.ChainID)
	if err != nil {
		return nil, err
	}
	logger.Printf("Successfully connected to the %s chain.", name)

	builder := callbreaker.NewBuilder(appID, solverKey, validatorKey,
		common.HexToAddress(chainCfg.BlockTimeAddress), nil)
	return chain.NewDispatcher(name, client, builder,
		common.HexToAddress(chainCfg.CallBreakerAddress), solverKey, nil), nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// parseAppID accepts either hex bytes (0x-prefixed) or a raw string.
func parseAppID(appID string) ([]byte, error) {
	if strings.HasPrefix(appID, "0x") {
		return hex.DecodeString(strings.TrimPrefix(appID, "0x"))
	}
	return []byte(appID), nil
}
