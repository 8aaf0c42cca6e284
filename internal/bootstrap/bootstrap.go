// Package bootstrap opens the production dependencies and assembles an
// app.Service from them. Every binary goes through here.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"booking_feed/internal/adapters/newbook"
	redisad "booking_feed/internal/adapters/redis"
	"booking_feed/internal/app"
	"booking_feed/internal/shared"
	mysqlrepo "booking_feed/internal/storage/mysql"
)

type Runtime struct {
	DB      *sql.DB
	Redis   *redis.Client
	Service *app.Service
}

// Open pings MySQL and Redis before building the service. Redis is optional:
// when it is unreachable cycles are guarded by a MySQL named lock and the
// directory is read uncached.
func Open(ctx context.Context, cfg shared.Config) (*Runtime, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(cfg.PollWorkers * 4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	log.Info().Msg("database connection ok")

	clock := shared.NewClock(nil)
	marks := mysqlrepo.NewWatermarks(db)
	dir := mysqlrepo.NewDirectory(db)
	deps := app.Deps{
		Buffer:       mysqlrepo.New(db, clock, cfg.DedupWindow),
		Watermarks:   marks,
		Directory:    dir,
		Integrations: dir,
		Source:       newbook.New(cfg.NewbookBase, cfg.NewbookKey, cfg.NewbookRPS),
	}

	rt := &Runtime{DB: db}
	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable; using MySQL named lock for cycles, directory cache disabled")
		_ = rc.Close()
		deps.Locker = mysqlrepo.NewLocker(db)
	} else {
		rt.Redis = rc
		cached := app.NewCachedDirectory(dir, dir, redisad.NewCache(rc), cfg.DirectoryCacheTTL)
		deps.Directory, deps.Integrations = cached, cached
		deps.Locker = redisad.NewLocker(rc)
	}

	rt.Service = app.NewService(cfg, deps)
	return rt, nil
}

func (r *Runtime) Close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	_ = r.DB.Close()
}
