package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/ethapi"
	"github.com/insoblok/inso-txpool/internal/fees"
	"github.com/insoblok/inso-txpool/internal/l1"
	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/metrics"
	"github.com/insoblok/inso-txpool/internal/optimism"
	"github.com/insoblok/inso-txpool/internal/rpc"
	"github.com/insoblok/inso-txpool/internal/signer"
	"github.com/insoblok/inso-txpool/internal/txpool"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "inso-txpool",
		Short:         "Transaction pool node serving the txpool JSON-RPC namespace",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Failed to load config:", err)
				return err
			}
			if err := setupLogging(os.Stdout, &cfg.Logging); err != nil {
				fmt.Fprintln(os.Stderr, "Failed to set up logging:", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg); err != nil {
				log.Error("InSo txpool exited with error", "err", err)
				return err
			}
			return nil
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "inso-txpool", version)
		},
	})
	return root
}

// setupLogging installs the default logger described by cfg.
func setupLogging(w io.Writer, cfg *config.LoggingConfig) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = log.JSONHandlerWithLevel(w, level)
	case "tint":
		handler = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.StampMilli})
	default:
		handler = log.NewTerminalHandlerWithLevel(w, level, true)
	}
	log.SetDefault(log.NewLogger(handler))
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.New("module", "main")
	logger.Info("InSo txpool starting",
		"version", version,
		"chainID", cfg.Chain.ChainID,
		"flavor", cfg.Chain.Flavor,
	)
	chainID := cfg.ChainIDBig()
	g, gctx := errgroup.WithContext(ctx)

	// Account nonces
	var nonces mempool.NonceSource = mempool.ZeroNonces{}
	if cfg.Pool.NonceRPCURL != "" {
		client, err := mempool.DialNonces(ctx, cfg.Pool.NonceRPCURL)
		if err != nil {
			return err
		}
		defer client.Close()
		nonces = client
	}

	poolCfg := mempool.Config{MaxSize: cfg.Pool.MaxSize, PriceBump: cfg.Pool.PriceBump}
	if cfg.Pool.MinFeeCap > 0 {
		poolCfg.MinFeeCap = new(big.Int).SetUint64(cfg.Pool.MinFeeCap)
	}
	pool := mempool.New(poolCfg, types.LatestSignerForChainID(chainID), nonces)
	logger.Info("Mempool initialized", "maxSize", cfg.Pool.MaxSize, "minFeeCap", cfg.Pool.MinFeeCap)
	if cfg.Pool.NonceRPCURL != "" && cfg.Pool.RefreshInterval > 0 {
		g.Go(func() error {
			pool.Run(gctx, cfg.Pool.RefreshInterval)
			return nil
		})
	}

	// Flavor-specific response shapes
	var (
		pools rpc.TxpoolBackend
		txs   rpc.TransactionBackend
	)
	if cfg.IsOptimism() {
		oracle, err := l1.Dial(ctx, &cfg.L1)
		if err != nil {
			return err
		}
		g.Go(func() error {
			oracle.Start(gctx)
			return nil
		})

		spec := &fees.ChainSpec{
			ChainID:      chainID,
			Optimism:     true,
			RegolithTime: cfg.Rollup.RegolithTime,
			EcotoneTime:  cfg.Rollup.EcotoneTime,
			FjordTime:    cfg.Rollup.FjordTime,
		}
		builder := optimism.OpTxBuilder{}
		pools = rpc.NewTxpoolBackend(txpool.NewAPI[*optimism.RPCTransaction](pool, builder))
		txs = rpc.NewTransactionBackend(ethapi.NewTransactionAPI(pool, optimism.DetailFormatter(builder, oracle, spec, time.Now)))
	} else {
		builder := ethapi.EthTxBuilder{}
		pools = rpc.NewTxpoolBackend(txpool.NewAPI[*ethapi.RPCTransaction](pool, builder))
		txs = rpc.NewTransactionBackend(ethapi.NewTransactionAPI(pool, ethapi.PendingFormatter[*ethapi.RPCTransaction](builder)))
	}

	handler := rpc.NewHandler(pool, pools, txs, chainID)
	handler.SetRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)

	// Local signing keys
	if len(cfg.Signer.Keys) > 0 {
		registry := signer.NewRegistry(chainID)
		for i, key := range cfg.Signer.Keys {
			addr, err := registry.AddHex(key)
			if err != nil {
				return fmt.Errorf("signer key %d: %w", i, err)
			}
			logger.Info("Signer account loaded", "address", addr)
		}
		handler.SetSigners(registry)
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		m.RegisterPool(pool.Stats)
		handler.SetMetrics(m)
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Addr)
		})
	}

	server := rpc.NewServer(&cfg.Server, handler, pool)
	g.Go(func() error {
		return server.Run(gctx)
	})

	logger.Info("InSo txpool running",
		"rpc", cfg.Server.ListenAddr,
		"ws", cfg.Server.WSAddr,
		"metrics", cfg.Metrics.Enabled,
	)
	err := g.Wait()
	logger.Info("InSo txpool stopped")
	return err
}
