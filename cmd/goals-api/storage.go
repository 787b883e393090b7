package main

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"example.com/goaltracker/internal/config"
	"example.com/goaltracker/internal/storage"
	"example.com/goaltracker/internal/storage/memory"
	spg "example.com/goaltracker/internal/storage/postgres"
	sredis "example.com/goaltracker/internal/storage/redis"
)

type backend interface {
	storage.KV
	storage.Pinger
}

// openKV opens the configured backend and waits for it to answer a ping.
// The returned func releases it.
func openKV(ctx context.Context, cfg config.Config) (backend, func(), error) {
	switch cfg.KVBackend {
	case config.BackendMemory:
		return memory.NewKV(), func() {}, nil

	case config.BackendRedis:
		kv := sredis.NewKV(sredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KVKeyPrefix,
		})
		if err := waitReady(ctx, cfg, "redis", kv); err != nil {
			_ = kv.Close()
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil

	case config.BackendPostgres:
		db, err := spg.Connect(ctx, cfg.PostgresDSN, spg.DefaultOptions)
		if err != nil {
			return nil, nil, errors.Annotate(err, "db connect")
		}
		if err := waitReady(ctx, cfg, "postgres", db); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, "migrations"); err != nil {
			db.Close()
			return nil, nil, errors.Annotate(err, "migration")
		}
		logger.Infof("db: migration applied")
		return spg.NewKV(db, cfg.KVKeyPrefix), db.Close, nil
	}
	return nil, nil, errors.NotValidf("KV backend %q", cfg.KVBackend)
}

func waitReady(ctx context.Context, cfg config.Config, name string, p storage.Pinger) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error { return p.Ping(ctx) },
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("%s: ping attempt %d failed: %v", name, attempt, err)
		},
		Attempts:    cfg.ConnectAttempts,
		Delay:       500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clock.WallClock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		return errors.Annotatef(retry.LastError(err), "%s not reachable", name)
	}
	logger.Infof("%s: connected", name)
	return nil
}
