package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chartsayer/positionbot/internal/config"
	"github.com/chartsayer/positionbot/internal/domain"
	"github.com/chartsayer/positionbot/internal/notify"
	"github.com/chartsayer/positionbot/internal/service"
	"github.com/chartsayer/positionbot/internal/store/redis"
)

// Dependencies bundles everything the application needs to serve requests.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	KV            *redis.Client
	PositionStore domain.PositionStore
	RateLimiter   *redis.RateLimiter
	Notifier      *notify.Notifier
	Positions     *service.PositionService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Redis (the single source of truth for positions) ---
	kv, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() {
		if err := kv.Close(); err != nil {
			logger.Warn("wire: redis close failed", slog.String("error", err.Error()))
		}
	})

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Service ---
	store := redis.NewPositionStore(kv)
	positions := service.NewPositionService(store, notifier, service.RiskConfig{
		ExposureLimit:  cfg.Risk.ExposureLimit,
		ExposurePolicy: cfg.Risk.ExposurePolicy,
	}, logger)

	return &Dependencies{
		KV:            kv,
		PositionStore: store,
		RateLimiter:   redis.NewRateLimiter(kv),
		Notifier:      notifier,
		Positions:     positions,
	}, cleanup, nil
}
