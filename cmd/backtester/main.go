// Command backtester wires config, a candle feed, the Order Position
// Manager and its collaborators, a broker, the audit log, and the Telegram
// notifier into a single runnable engine.
//
// Architecture: Feed -> Manager -> Broker, Manager -> Event Bus -> {Log, Audit, Notify}
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/algoforge/ordergroup/internal/audit"
	"github.com/algoforge/ordergroup/internal/broker/simbroker"
	"github.com/algoforge/ordergroup/internal/config"
	"github.com/algoforge/ordergroup/internal/domain"
	"github.com/algoforge/ordergroup/internal/events"
	"github.com/algoforge/ordergroup/internal/feed"
	"github.com/algoforge/ordergroup/internal/manager"
	"github.com/algoforge/ordergroup/internal/notify"
	"github.com/algoforge/ordergroup/internal/protection"
	"github.com/algoforge/ordergroup/internal/registry"
	"github.com/algoforge/ordergroup/internal/retry"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().Str("version", version).Msg("🚀 order group engine starting")

	bus := events.New(cfg.EventQueueDepth)
	defer bus.Close()
	go events.RunLogSubscriber(bus.Subscribe(64))

	auditLog, err := audit.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit log")
	}
	defer auditLog.Close()
	go auditLog.Run(bus.Subscribe(256))

	if cfg.TelegramToken != "" {
		notifier, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			go notifier.Run(bus.Subscribe(64))
		}
	}

	reg := registry.New(cfg.MaxConcurrentGroups)
	retryHandler := retry.New(bus)
	brk := simbroker.New()
	checker := protection.New(reg, brk, bus)
	mgr := manager.New(reg, retryHandler, brk, checker, bus, cfg.MatchTolerance, auditLog.RecordGroupClosed)

	candleFeed := feed.New(os.Getenv("CANDLE_WS_URL"), func(candle domain.CandleMessage) {
		if candle.State == domain.CandleFinished {
			mgr.CheckProtectionLevels(candle)
		}
	})
	candleFeed.Start()
	defer candleFeed.Stop()

	log.Info().Msg("✅ engine running, waiting for order requests and candles")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 shutting down, closing all positions")
	mgr.CloseAllPositions()
	log.Info().Msg("👋 goodbye")
}
