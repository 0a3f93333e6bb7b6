package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stockswap-labs/stockswap/params"
	"github.com/stockswap-labs/stockswap/pkg/agent"
	"github.com/stockswap-labs/stockswap/pkg/api"
	"github.com/stockswap-labs/stockswap/pkg/ledger"
	"github.com/stockswap-labs/stockswap/pkg/pricefeed"
	"github.com/stockswap-labs/stockswap/pkg/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML config file (optional)")
	envPath := flag.String("env", "", ".env file (default: .env in current directory)")
	flag.Parse()

	// Config priority: ENV > .env > YAML > defaults
	cfg, err := params.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Ledger ----
	ldgr, err := ledger.Open(cfg.Node.DataDir, util.RealClock{}, sugar)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "data_dir", cfg.Node.DataDir, "err", err)
	}
	defer ldgr.Close()

	if ldgr.Pool() == nil {
		if err := initializePool(ldgr, cfg); err != nil {
			sugar.Fatalw("pool_init_failed", "err", err)
		}
	}
	if pool := ldgr.Pool(); pool != nil {
		sugar.Infow("node_starting",
			"data_dir", cfg.Node.DataDir,
			"vault_authority", pool.VaultAuthority.Hex(),
			"backend_authority", pool.BackendAuthority.Hex(),
			"total_orders", pool.TotalOrders,
		)
	} else {
		sugar.Warnw("pool_not_initialized", "hint", "set VAULT_AUTHORITY and BACKEND_AUTHORITY")
	}

	// ---- Price feed ----
	feed := pricefeed.NewClient(cfg.Feed, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Settlement agent (optional) ----
	if cfg.Node.EnableAgent {
		pool := ldgr.Pool()
		if pool == nil {
			sugar.Fatalw("agent_requires_initialized_pool")
		}
		worker := agent.New(ldgr, feed, pool.BackendAuthority,
			cfg.Agent.PollInterval, cfg.Agent.PriceMaxAge, sugar)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("agent_stopped", "err", err)
			}
		}()
	} else {
		sugar.Info("settlement agent disabled")
	}

	// ---- API Server ----
	apiServer := api.NewServer(ldgr, feed, sugar)
	go func() {
		if err := apiServer.Start(cfg.Node.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
}

// initializePool creates the pool registry on first boot when both
// authorities are configured. A node without authorities serves queries only.
func initializePool(l *ledger.Ledger, cfg params.Config) error {
	if cfg.Authorities.Vault == "" || cfg.Authorities.Backend == "" {
		return nil
	}
	if !common.IsHexAddress(cfg.Authorities.Vault) {
		return errors.New("invalid vault authority address: " + cfg.Authorities.Vault)
	}
	if !common.IsHexAddress(cfg.Authorities.Backend) {
		return errors.New("invalid backend authority address: " + cfg.Authorities.Backend)
	}
	_, err := l.Initialize(
		common.HexToAddress(cfg.Authorities.Vault),
		common.HexToAddress(cfg.Authorities.Backend),
	)
	return err
}
