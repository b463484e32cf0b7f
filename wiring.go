package main

import (
	"context"
	"fmt"
	"time"

	"shorturl-analytics/cache"
	"shorturl-analytics/config"
	"shorturl-analytics/handlers"
	"shorturl-analytics/logging"
	"shorturl-analytics/pipeline"
	"shorturl-analytics/pubsub"
	"shorturl-analytics/source"
	"shorturl-analytics/utils"
	"shorturl-analytics/writer"

	"github.com/elastic/go-elasticsearch/v7"
)

const (
	connectAttempts = 5
	connectDelay    = 500 * time.Millisecond
)

// app holds everything main builds from the configuration.
type app struct {
	pipeline *pipeline.Pipeline
	writer   writer.BulkWriter
	redis    *cache.RedisStore
	checks   []handlers.Check
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.ErrorLogger.Printf("closing: %v", err)
		}
	}
}

func connectElastic(ctx context.Context, cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	es, err := writer.NewElasticClient(cfg)
	if err != nil {
		return nil, &config.ConfigError{Field: "elasticsearch", Reason: "invalid client settings", Err: err}
	}
	err = utils.RetryWithExponentialBackoff(ctx, "elasticsearch", func() error {
		res, err := es.Info(es.Info.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("info: %s", res.Status())
		}
		return nil
	}, connectAttempts, connectDelay)
	return es, err
}

func elasticCheck(es *elasticsearch.Client) handlers.Check {
	return handlers.Check{Name: "Elasticsearch", Ping: func(ctx context.Context) error {
		res, err := es.Ping(es.Ping.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("ping: %s", res.Status())
		}
		return nil
	}}
}

// buildApp checks the source, connects the destination, the optional cache and event bus, and
// assembles the pipeline. A *config.ConfigError disables the pipeline; any
// other error means a dependency could not be reached.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// A bad file source is a configuration error; report it before waiting
	// on any dependency.
	var opts []pipeline.Option
	if cfg.Source.Type == config.SourceFile {
		r, err := source.New(cfg.Source, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithReader(r))
	}

	var es *elasticsearch.Client
	if cfg.Destination.Kind == config.DestElasticsearch || cfg.Source.Type == config.SourceIndex {
		var err error
		if es, err = connectElastic(ctx, cfg.Elasticsearch); err != nil {
			return nil, err
		}
		a.checks = append(a.checks, elasticCheck(es))
	}

	switch cfg.Destination.Kind {
	case config.DestElasticsearch:
		a.writer = writer.NewElasticWriter(es, cfg.Destination.Index, cfg.Destination.Type)
	case config.DestSQLite:
		if err := config.InitDB(cfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("opening sqlite destination: %w", err)
		}
		a.writer = writer.NewSQLiteWriter(config.DB)
		a.checks = append(a.checks, handlers.Check{Name: "Database", Ping: func(ctx context.Context) error {
			sqlDB, err := config.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	case config.DestPostgres:
		var pw *writer.PostgresWriter
		err := utils.RetryWithExponentialBackoff(ctx, "postgres", func() error {
			var err error
			pw, err = writer.OpenPostgres(ctx, cfg.Postgres)
			return err
		}, connectAttempts, connectDelay)
		if err != nil {
			return nil, err
		}
		a.writer = pw
		a.checks = append(a.checks, handlers.Check{Name: "Database", Ping: pw.Ping})
	default:
		return nil, &config.ConfigError{Field: "destIndex.kind", Reason: "unknown destination"}
	}
	a.closers = append(a.closers, a.writer.Close)

	if cfg.Cache.Kind == config.CacheRedis || cfg.Events.Enabled {
		err := utils.RetryWithExponentialBackoff(ctx, "redis", func() error {
			var err error
			a.redis, err = cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.TTL.D())
			return err
		}, connectAttempts, connectDelay)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.redis.Close)
		a.checks = append(a.checks, handlers.Check{Name: "Redis", Ping: func(ctx context.Context) error {
			return a.redis.Client.Ping(ctx).Err()
		}})
	}

	if es != nil {
		opts = append(opts, pipeline.WithScroller(source.NewElasticScroller(es)))
	}
	switch cfg.Cache.Kind {
	case config.CacheMemory:
		mem, err := cache.NewBigCacheStore(cfg.Cache.TTL.D())
		if err != nil {
			return nil, fmt.Errorf("creating fetch cache: %w", err)
		}
		a.closers = append(a.closers, mem.Close)
		opts = append(opts, pipeline.WithCache(mem))
	case config.CacheRedis:
		opts = append(opts, pipeline.WithCache(a.redis))
	}
	if cfg.Events.Enabled {
		ps := pubsub.NewPubSub(a.redis, cfg.Events.Channel)
		opts = append(opts, pipeline.WithListener(pubsub.NewPublisher(ps)))
	}

	p, err := pipeline.New(cfg, a.writer, opts...)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	ok = true
	return a, nil
}
