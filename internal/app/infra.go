// Package app assembles the storage and messaging adapters selected by
// configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	daprclient "github.com/dapr/go-sdk/client"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/adapter/bus"
	"github.com/rl1809/dapr-shop/internal/adapter/dapr"
	"github.com/rl1809/dapr-shop/internal/adapter/storage"
	"github.com/rl1809/dapr-shop/internal/config"
	"github.com/rl1809/dapr-shop/internal/port"
)

const connectTimeout = 5 * time.Second

// Infra owns the state store, the event bus and the connections behind them.
type Infra struct {
	Store     port.StateStore
	Publisher port.EventPublisher

	logger   *zap.Logger
	local    *bus.LocalBus
	redisBus *bus.RedisBus
	handlers map[string]port.EventHandler

	rdb     *redis.Client
	dapr    daprclient.Client
	closers []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open connects the backends named in cfg. On error, anything already
// opened is closed again.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Infra, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	in := &Infra{logger: logger, handlers: make(map[string]port.EventHandler)}
	if err := in.openStore(ctx, cfg); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.openBus(ctx, cfg); err != nil {
		in.Close()
		return nil, err
	}
	logger.Info("infrastructure ready",
		zap.String("state", cfg.StateBackend),
		zap.String("bus", cfg.BusBackend))
	return in, nil
}

func (in *Infra) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.StateBackend {
	case config.StateMemory:
		in.Store = storage.NewMemoryAdapter()

	case config.StateRedis:
		rdb, err := in.redis(ctx, cfg)
		if err != nil {
			return err
		}
		in.Store = storage.NewRedisAdapter(rdb)

	case config.StateMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		in.closers = append(in.closers, func() { db.Close() })
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate mysql: %w", err)
		}
		in.logger.Info("connected to mysql")
		in.Store = adapter

	case config.StatePostgres:
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		pool, err := pgxpool.New(connCtx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		in.closers = append(in.closers, pool.Close)
		if err := pool.Ping(connCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		adapter := storage.NewPostgresAdapter(pool)
		if err := adapter.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		in.logger.Info("connected to postgres")
		in.Store = adapter

	case config.StateDapr:
		client, err := in.Sidecar()
		if err != nil {
			return err
		}
		in.Store = dapr.NewStateAdapter(client, cfg.DaprStateStore)
	}
	return nil
}

func (in *Infra) openBus(ctx context.Context, cfg config.Config) error {
	switch cfg.BusBackend {
	case config.BusLocal:
		in.local = bus.NewLocalBus(in.logger, cfg.BusQueueSize, cfg.BusWorkers)
		in.Publisher = in.local

	case config.BusRedis:
		rdb, err := in.redis(ctx, cfg)
		if err != nil {
			return err
		}
		in.redisBus = bus.NewRedisBus(rdb, in.logger)
		in.Publisher = in.redisBus

	case config.BusDapr:
		client, err := in.Sidecar()
		if err != nil {
			return err
		}
		in.Publisher = dapr.NewPublisher(client, cfg.DaprPubSub)
	}
	return nil
}

// redis returns the shared client, dialing it on first use.
func (in *Infra) redis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if in.rdb != nil {
		return in.rdb, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	in.logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	in.rdb = rdb
	in.closers = append(in.closers, func() { rdb.Close() })
	return rdb, nil
}

// Sidecar returns the shared Dapr client, dialing it on first use. The SDK
// reads DAPR_GRPC_PORT.
func (in *Infra) Sidecar() (daprclient.Client, error) {
	if in.dapr != nil {
		return in.dapr, nil
	}
	client, err := daprclient.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connect dapr sidecar: %w", err)
	}
	in.dapr = client
	in.closers = append(in.closers, client.Close)
	return client, nil
}

// Subscribe routes topic to h on in-process buses. With the Dapr bus the
// sidecar pushes events over HTTP instead, so this is a no-op.
func (in *Infra) Subscribe(topic string, h port.EventHandler) {
	switch {
	case in.local != nil:
		in.local.Subscribe(topic, h)
	case in.redisBus != nil:
		in.handlers[topic] = h
	}
}

// Start begins consuming subscribed topics and returns once the
// subscription is live.
func (in *Infra) Start(ctx context.Context) error {
	if in.redisBus == nil || len(in.handlers) == 0 {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel

	ready := make(chan struct{})
	errc := make(chan error, 1)
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		err := in.redisBus.Run(runCtx, in.handlers, ready)
		if err != nil && !errors.Is(err, context.Canceled) {
			in.logger.Error("redis bus stopped", zap.Error(err))
		}
		errc <- err
	}()

	select {
	case <-ready:
		return nil
	case err := <-errc:
		return fmt.Errorf("start redis bus: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the bus, then closes connections in reverse order.
func (in *Infra) Close() {
	if in.cancel != nil {
		in.cancel()
	}
	in.wg.Wait()
	if in.local != nil {
		in.local.Close()
	}
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}
