package cmd

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"secondhand-aggregator/config"
	"secondhand-aggregator/metrics"
	"secondhand-aggregator/scraper"
	"secondhand-aggregator/scraper/andele"
	"secondhand-aggregator/scraper/fetch"
	"secondhand-aggregator/scraper/osta"
	"secondhand-aggregator/scraper/ss"
	"secondhand-aggregator/services"
	"secondhand-aggregator/storage"
	"secondhand-aggregator/utils"
)

// app is everything a command needs, wired from one Config.
type app struct {
	cfg      *config.Config
	registry *scraper.Registry
	cache    *storage.ResultCache
	browser  *fetch.BrowserPool
	redis    *redis.Client
	mirror   *storage.RedisMirror
	archive  *storage.PostgresWriter
	metrics  *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config) *app {
	a := &app{
		cfg:     cfg,
		cache:   storage.NewResultCache(cfg.CacheTTL),
		browser: fetch.NewBrowserPool(fetch.ChromeLauncher(cfg.Headless)),
		metrics: metrics.New(),
	}

	plain := fetch.NewHTTPFetcher(cfg.HTTPTimeout,
		fetch.WithRetries(cfg.HTTPRetries, time.Second),
		fetch.WithHostRate(cfg.HostRPS),
	)
	render := fetch.NewRenderFetcher(a.browser, cfg.RenderTimeout,
		fetch.WithRenderRetries(cfg.RenderRetries, time.Second),
	)
	a.registry = scraper.NewRegistry(
		ss.New(cfg.Source("ss"), plain),
		andele.New(cfg.Source("andele"), render, plain),
		osta.New(cfg.Source("osta"), render),
	)

	// Redis and Postgres are optional; a search works without either.
	if cfg.RedisAddr != "" {
		client, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			utils.Warn("Redis mirror disabled: %v", err)
		} else {
			a.redis = client
			a.mirror = storage.NewRedisMirror(client, "")
			utils.Info("Redis mirror at %s", cfg.RedisAddr)
		}
	}
	if dsn := cfg.DSN(); dsn != "" {
		archive, err := openArchive(ctx, dsn)
		if err != nil {
			utils.Warn("Listing archive disabled: %v", err)
		} else {
			a.archive = archive
		}
	}
	return a
}

func openArchive(ctx context.Context, dsn string) (*storage.PostgresWriter, error) {
	w, err := storage.NewPostgresWriter(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := w.EnsureSchema(ctx); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// orchestrator builds the search pipeline. With asyncArchive the orchestrator
// archives each fresh page itself; otherwise the caller does.
func (a *app) orchestrator(asyncArchive bool) *services.Orchestrator {
	options := []services.Option{services.WithMetrics(a.metrics)}
	if a.mirror != nil {
		options = append(options, services.WithMirror(a.mirror))
	}
	if asyncArchive && a.archive != nil {
		options = append(options, services.WithArchive(a.archive))
	}
	return services.NewOrchestrator(a.registry, a.cache, services.Options{
		DefaultSources: a.cfg.DefaultSources,
		PerPage:        a.cfg.PerPage,
		MaxResults:     a.cfg.MaxResults,
		CacheTTL:       a.cfg.CacheTTL,
	}, options...)
}

func (a *app) Close() {
	a.browser.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			utils.Warn("close redis: %v", err)
		}
	}
	if a.archive != nil {
		a.archive.Close()
	}
}
