package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"nexwave/internal/config"
	"nexwave/internal/engine"
	"nexwave/internal/gateway/pacifica"
	"nexwave/internal/gateway/paper"
	"nexwave/internal/logger"
	"nexwave/internal/market"
	"nexwave/internal/performance"
	"nexwave/internal/position"
	"nexwave/internal/risk"
	"nexwave/internal/store/gormstore"
	"nexwave/internal/store/signallog"
	livehttp "nexwave/internal/transport/http/live"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("NEXWAVE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cfg := watcher.Snapshot().Config

	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("init log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, symbols=%v, timeframe=%s, paper=%v)",
		cfg.App.Env, cfg.Trading.Symbols, cfg.Trading.Timeframe, cfg.Trading.PaperTrading)

	st, err := gormstore.New(cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("open position store failed: %v", err)
	}
	defer st.Close()

	signals, err := signallog.New(cfg.Store.SignalLogPath)
	if err != nil {
		log.Fatalf("open signal log failed: %v", err)
	}
	defer signals.Close()

	provider := market.NewBinanceSource(market.BinanceConfig{
		BaseURL:  cfg.Market.RESTBaseURL,
		ProxyURL: proxyURL(cfg),
	})

	var venue position.Exchange
	if cfg.Trading.PaperTrading {
		logger.Infof("paper trading mode: no live orders will be placed")
		venue = paper.NewExchange()
	} else {
		client, err := pacifica.NewClient(pacifica.Config{
			BaseURL:          cfg.Exchange.BaseURL,
			APIKey:           cfg.Exchange.APIKey,
			PrivateKey:       cfg.Exchange.PrivateKey,
			HTTPTimeout:      cfg.Exchange.Timeout(),
			MaxRetries:       cfg.Exchange.MaxRetries,
			BreakerThreshold: cfg.Exchange.BreakerThreshold,
			BreakerCooldown:  cfg.Exchange.BreakerCooldown(),
		})
		if err != nil {
			log.Fatalf("init exchange client failed: %v", err)
		}
		logger.Infof("exchange client ready (account=%s)", client.Account())
		venue = client
	}

	strategyID := cfg.Trading.StrategyID
	positions := position.NewManager(strategyID, st, venue)
	riskMgr := risk.NewManager(st)

	eng := engine.New(engine.Params{
		StrategyID: strategyID,
		Watcher:    watcher,
		Provider:   provider,
		Exchange:   venue,
		Risk:       riskMgr,
		Positions:  positions,
		Store:      st,
		Signals:    signals,
	})

	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:        cfg.App.HTTPAddr,
		Store:       st,
		Signals:     signals,
		Performance: performance.NewTracker(st),
		Watcher:     watcher,
	})
	if err != nil {
		log.Fatalf("init http server failed: %v", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("http server listening on %s", server.Addr())
		return server.Start(gctx)
	})
	group.Go(func() error {
		return eng.Run(gctx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("run failed: %v", err)
	}
	logger.Infof("shutdown complete")
}

func proxyURL(cfg *config.Config) string {
	if cfg.Market.Proxy.Enabled {
		return cfg.Market.Proxy.RESTURL
	}
	return ""
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
