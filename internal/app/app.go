// Package app builds every storefront component once from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/guard"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Storage  storage.Store
	API      *api.Client
	Catalog  *catalog.Catalog
	Cart     *cart.Store
	Auth     *auth.Manager
	Checkout *checkout.Flow
	Orders   *checkout.History
	Users    *auth.Directory
	Routes   guard.Routes

	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Routes: guard.DefaultRoutes()}

	st, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.Storage = st
	a.closers = append(a.closers, closeStorage)

	breaker := circuitbreaker.DefaultConfig("storefront-api")
	breaker.MaxFailures = uint32(cfg.BreakerMaxFailures)
	breaker.OpenTimeout = cfg.BreakerOpenTimeout
	a.API = api.NewClient(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		Breaker: breaker,
	}, log)

	a.Catalog = catalog.New(a.API, log)
	a.Cart = cart.New(ctx, st, a.Catalog, log)
	a.Auth = auth.NewManager(ctx, a.API, st, log)

	var sink checkout.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(events.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...), log)
		sink = pub
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		log.Info("order events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	a.Checkout = checkout.NewFlow(checkout.Config{MessageTTL: cfg.MessageTTL, KeepLateAdditions: cfg.KeepLateAdditions}, a.API, a.Cart, a.Auth, a.Catalog, sink, log)
	a.Orders = checkout.NewHistory(a.API, a.Auth)
	a.Users = auth.NewDirectory(a.API, a.Auth)
	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), noop, nil

	case config.StorageSQLite, config.StoragePostgres:
		var (
			st  *storage.SQLStore
			err error
		)
		if cfg.Storage == config.StorageSQLite {
			st, err = storage.OpenSQLite(cfg.SQLitePath)
		} else {
			st, err = storage.OpenPostgres(&storage.Credentials{
				Host:     cfg.Postgres.Host,
				Port:     cfg.Postgres.Port,
				User:     cfg.Postgres.User,
				Password: cfg.Postgres.Password,
				DBName:   cfg.Postgres.DBName,
				SSLMode:  cfg.Postgres.SSLMode,
			})
		}
		if err != nil {
			return nil, nil, err
		}
		if err := st.RunMigrations(); err != nil {
			st.Close()
			return nil, nil, err
		}
		log.Debug("sql storage ready", "dialect", cfg.Storage)
		return st, func(context.Context) error { return st.Close() }, nil

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return storage.NewRedisStore(client, cfg.Profile), func(context.Context) error { return client.Close() }, nil

	case config.StorageMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		st := storage.NewMongoStore(db)
		return st, st.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// Close releases storage connections and the event writer, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
