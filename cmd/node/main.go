package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/meshbook/params"
	"github.com/uhyunpark/meshbook/pkg/api"
	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/identity"
	"github.com/uhyunpark/meshbook/pkg/node"
	"github.com/uhyunpark/meshbook/pkg/ordergen"
	"github.com/uhyunpark/meshbook/pkg/p2p"
	"github.com/uhyunpark/meshbook/pkg/storage"
	"github.com/uhyunpark/meshbook/pkg/util"
)

func main() {
	// Load config from .env file, NODE_CONFIG yaml and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogLevel, cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	// ---- Identity ----
	id := identity.Generate()
	if cfg.Node.ClientID != "" {
		if id, err = identity.FromString(cfg.Node.ClientID); err != nil {
			sugar.Fatalw("client_id_invalid", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Network ----
	lpn, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
		ListenAddr:     cfg.Network.ListenAddr,
		Bootstrap:      cfg.Network.BootstrapPeers,
		RequestTimeout: cfg.Network.RequestTimeout,
		Logger:         sugar,
	})
	if err != nil {
		sugar.Fatalw("libp2p_init_failed", "err", err)
	}
	defer lpn.Close()

	// ---- Book + trade journal ----
	ob := book.NewOrderBook()

	var journal storage.Journal = storage.NopJournal{}
	if cfg.Node.JournalPath != "" {
		pj, err := storage.OpenPebbleJournal(cfg.Node.JournalPath)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Node.JournalPath, "err", err)
		}
		journal = pj
		sugar.Infow("journal_opened", "path", cfg.Node.JournalPath)
	}
	defer journal.Close()

	ob.OnTrade(func(t book.Trade) {
		if err := journal.Append(t); err != nil {
			sugar.Errorw("journal_append_failed", "symbol", t.Symbol, "err", err)
		}
	})

	// ---- Order generator (optional) ----
	// Disable with: ENABLE_ORDERGEN=false
	var gen *ordergen.Generator
	if cfg.Sync.GenerateOrders {
		genCfg := ordergen.DefaultConfig()
		genCfg.Symbols = cfg.Sync.Symbols
		if gen, err = ordergen.New(genCfg, time.Now().UnixNano()); err != nil {
			sugar.Fatalw("ordergen_config_invalid", "err", err)
		}
		sugar.Infow("ordergen_enabled", "interval", cfg.Sync.OrderInterval, "symbols", genCfg.Symbols)
	} else {
		sugar.Info("ordergen_disabled")
	}

	// ---- Node ----
	nodeCfg := node.Config{
		Topic:            cfg.Network.Topic,
		AnnounceInterval: cfg.Sync.AnnounceInterval,
		OrderInterval:    cfg.Sync.OrderInterval,
		BootstrapTimeout: cfg.Sync.BootstrapTimeout,
		BroadcastTimeout: cfg.Sync.BroadcastTimeout,
		GenerateOrders:   cfg.Sync.GenerateOrders,
		Meta:             map[string]string{"client": id.ClientID},
	}
	n := node.New(nodeCfg, id, ob, lpn, gen, sugar)

	// ---- API Server ----
	apiServer := api.NewServer(n, lpn.ID(), journal, sugar)
	if cfg.Node.APIAddr != "" {
		go func() {
			if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
				sugar.Errorw("api_server_failed", "err", err)
				stop()
			}
		}()
	}

	sugar.Infow("node_starting",
		"client", id.ClientID,
		"peer", lpn.ID(),
		"topic", nodeCfg.Topic,
		"bootstrap_peers", len(cfg.Network.BootstrapPeers))

	if err := n.Run(ctx); err != nil {
		sugar.Errorw("node_failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}
