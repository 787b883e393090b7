package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("goaltracker.storage.postgres")

// DB is the connection pool behind the kv_store table. The store holds a
// handful of keys, so the pool stays small.
type DB struct {
	Pool *pgxpool.Pool
}

type Options struct {
	MaxConns          int32
	HealthCheckPeriod time.Duration
}

var DefaultOptions = Options{MaxConns: 4, HealthCheckPeriod: time.Minute}

func Connect(ctx context.Context, dsn string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Annotate(err, "parse dsn")
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Annotate(err, "pgxpool")
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return errors.Annotate(db.Pool.Ping(ctx), "ping")
}

// RunMigrations executes every *.sql file in dir in lexical order. The
// files are expected to be idempotent (CREATE ... IF NOT EXISTS).
func (db *DB) RunMigrations(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return errors.Annotatef(err, "list migrations in %s", dir)
	}
	if len(files) == 0 {
		return errors.NotFoundf("migrations in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			return errors.Annotate(err, "read migration")
		}
		if _, err := db.Pool.Exec(ctx, string(sqlBytes)); err != nil {
			return errors.Annotatef(err, "exec migration %s", filepath.Base(f))
		}
		logger.Debugf("applied %s", filepath.Base(f))
	}
	return nil
}
