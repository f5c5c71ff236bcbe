// Command verifier runs a single RainBlock verifier node: it loads
// genesis state, joins the block-generation race against its peers,
// and commits proposed or adopted blocks to its configured storage
// shards.
//
// Usage:
//
//	verifier [flags]
//
// Flags:
//
//	--config    Path to the node's JSON configuration file (default: ./config.json)
//	--metrics.addr  Address to serve /metrics on (default: :9090)
//	--verbose   Enable debug-level logging
//	--version   Print version and exit
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

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rainblock/verifier/blockgen"
	"github.com/rainblock/verifier/config"
	"github.com/rainblock/verifier/execution"
	"github.com/rainblock/verifier/genesis"
	"github.com/rainblock/verifier/log"
	"github.com/rainblock/verifier/metrics"
	"github.com/rainblock/verifier/netlearner"
	"github.com/rainblock/verifier/rpcapi"
	"github.com/rainblock/verifier/shardclient"
	"github.com/rainblock/verifier/types"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	fs := flag.NewFlagSet("verifier", flag.ContinueOnError)
	configPath := fs.String("config", "./config.json", "path to the node's JSON configuration file")
	metricsAddr := fs.String("metrics.addr", ":9090", "address to serve /metrics on")
	verbose := fs.Bool("verbose", false, "enable debug-level logging")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("verifier %s (commit %s)\n", version, commit)
		return 0
	}

	level := zapcore.InfoLevel
	if *verbose {
		level = zapcore.DebugLevel
	}
	log.SetDefault(log.New(level))
	logger := log.Module("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return 1
	}

	beneficiary, err := types.HexToAddress(cfg.Beneficiary)
	if err != nil {
		logger.Error("invalid beneficiary address", zap.Error(err))
		return 1
	}

	genesisHeader, err := loadGenesisHeader(cfg)
	if err != nil {
		logger.Error("failed to load genesis block", zap.Error(err))
		return 1
	}

	tree, err := genesis.Load(cfg.ResolvePath(cfg.GenesisData), genesisHeader.StateRoot, cfg.PruneDepth)
	if err != nil {
		logger.Error("failed to load genesis state", zap.Error(err))
		return 1
	}
	logger.Info("genesis state loaded", zap.String("stateRoot", genesisHeader.StateRoot.String()))

	learner := netlearner.New()
	shards := dialShards(cfg, logger)

	checkpointFile, err := os.OpenFile(cfg.ResolvePath("checkpoint.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Error("failed to open checkpoint log", zap.Error(err))
		return 1
	}
	defer checkpointFile.Close()
	checkpoint := metrics.NewCheckpointWriter(checkpointFile, 100)

	genCfg := blockgen.Config{
		Beneficiary:   beneficiary,
		PowMin:        time.Duration(cfg.PowMin) * time.Millisecond,
		PowMax:        time.Duration(cfg.PowMax) * time.Millisecond,
		MaxTxPerBlock: cfg.MaxTxPerBlock,
		PruneDepth:    cfg.PruneDepth,
		Exec: execution.Config{
			GenerateFromAccounts: cfg.GenerateFromAccounts,
			DisableNonceCheck:    cfg.DisableNonceCheck,
			ShareBag:             cfg.ShareBag,
		},
	}
	generator := blockgen.New(genCfg, tree, learner, shards, checkpoint)

	handler := &rpcapi.Handler{
		Queue:           generator,
		Learner:         learner,
		Beneficiary:     beneficiary,
		ProtocolVersion: 1,
		Version:         version,
		CurrentHeight:   generator.BlockNumber,
	}
	_ = handler // wired to the (externally defined) wire transport; see rpcapi package docs.

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("verifier starting", zap.Uint64("blockNumber", generator.BlockNumber()))
	runErr := generator.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("block generator exited with error", zap.Error(runErr))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// loadGenesisHeader decodes the RLP-encoded genesis block referenced
// by the configuration, used only for its declared state root.
func loadGenesisHeader(cfg *config.Config) (*types.Header, error) {
	data, err := os.ReadFile(cfg.ResolvePath(cfg.GenesisBlock))
	if err != nil {
		return nil, fmt.Errorf("read genesis block: %w", err)
	}
	block, err := types.DecodeBlockRLP(data)
	if err != nil {
		return nil, fmt.Errorf("decode genesis block: %w", err)
	}
	return block.Header, nil
}

// dialShards builds a ShardClient for each of the 16 storage shards.
// Every shard gets an in-process InMemoryClient, the single-machine
// demo wiring; a configured host is not dialed, and a shard with no
// configured host is logged as a warning.
func dialShards(cfg *config.Config, logger *log.Logger) [shardclient.NumShards]shardclient.ShardClient {
	var shards [shardclient.NumShards]shardclient.ShardClient
	for i := range shards {
		host := cfg.ShardHost(i)
		if host == "" {
			logger.Warn("no storage host configured for shard, using in-process stub", zap.Int("shard", i))
		}
		shards[i] = &shardclient.InMemoryClient{}
	}
	return shards
}
