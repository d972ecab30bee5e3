package server

import (
	"context"
	"fmt"
	"os"

	"github.com/rcourtman/paybridge/internal/billing"
	"github.com/rcourtman/paybridge/internal/config"
	"github.com/rcourtman/paybridge/internal/crmstore"
	"github.com/rcourtman/paybridge/internal/plans"
	"github.com/rcourtman/paybridge/internal/provision"
	"github.com/rcourtman/paybridge/internal/reconcile"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/rcourtman/paybridge/internal/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// App is the wired set of components shared by the server and the CLI commands.
type App struct {
	Config   *config.Config
	Store    *crmstore.Store
	Gateway  *square.Client
	Plans    *plans.Resolver
	Engine   *reconcile.Engine
	Billing  *billing.Processor
	Receiver *webhook.Receiver

	memDedup *webhook.MemoryDeduper
	redis    *redis.Client
}

// NewApp opens the CRM store and builds every component from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := crmstore.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open crm store: %w", err)
	}

	gateway := square.NewClient(cfg.Processor)
	resolver := plans.NewResolver(gateway, store)
	engine := reconcile.NewEngine(gateway, store, store, store)
	processor := billing.NewProcessor(billing.Dependencies{
		Gateway:   gateway,
		Customers: provision.NewProvisioner(gateway, store),
		Plans:     resolver,
		Contacts:  store,
		Recurs:    store,
		Canceller: engine,
		Timezone:  cfg.Timezone,
	})

	app := &App{
		Config:  cfg,
		Store:   store,
		Gateway: gateway,
		Plans:   resolver,
		Engine:  engine,
		Billing: processor,
	}

	var dedup webhook.Deduper
	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		dedup = webhook.NewRedisDeduper(app.redis, webhook.DefaultDedupTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Webhook dedup store: redis")
	} else {
		app.memDedup = webhook.NewMemoryDeduper(webhook.DefaultDedupTTL)
		dedup = app.memDedup
		log.Info().Msg("Webhook dedup store: in-memory (set PAYBRIDGE_REDIS_ADDR to share across replicas)")
	}
	app.Receiver = webhook.NewReceiver(cfg.Processor, cfg.NotificationURL, dedup, engine)
	return app, nil
}

// StartBackground starts the dedup sweeper, if any.
func (a *App) StartBackground() {
	if a.memDedup != nil {
		a.memDedup.StartSweeper(0)
	}
}

func (a *App) Close() error {
	if a.memDedup != nil {
		a.memDedup.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	return a.Store.Close()
}
