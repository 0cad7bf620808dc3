package main

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/watanabetatsumi/nutricache/cmd/config"
	"github.com/watanabetatsumi/nutricache/internal/application/service"
	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository"
	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository/plugins"
	mylog "github.com/watanabetatsumi/nutricache/internal/log"
)

// app 各コマンドで共有する依存関係
type app struct {
	conf  config.Config
	repo  *repository.FactRepository
	cache *service.FactCache
	close func() error
}

// newApp 設定を読み込み、ストアとキャッシュを初期化する
// キャッシュはストアの内容で温めた状態で返す
func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	conf := config.LoadConfig(cmd.String("config"))
	mylog.InitLogger(conf.Log.Level)
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	client, closeFn, err := newRepoClient(ctx, conf)
	if err != nil {
		return nil, err
	}
	repo := repository.NewFactRepository(client)

	cache := service.NewFactCache(repo,
		service.WithTTL(conf.Cache.TTL),
		service.WithRetryPolicy(service.RetryPolicy{
			Attempts:  conf.Cache.RetryAttempts,
			BaseDelay: conf.Cache.RetryBaseDelay,
		}),
		service.WithApproxEntrySize(conf.Cache.ApproxEntrySize),
	)
	if err := cache.Load(ctx); err != nil {
		_ = closeFn()
		return nil, err
	}

	return &app{
		conf:  conf,
		repo:  repo,
		cache: cache,
		close: closeFn,
	}, nil
}

// newRepoClient 設定されたドライバーに応じてFactRepoClientを作る
func newRepoClient(ctx context.Context, conf config.Config) (repository.FactRepoClient, func() error, error) {
	noop := func() error { return nil }

	switch conf.Store.Driver {
	case config.DriverRedis:
		rclient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", conf.RedisClient.Host, conf.RedisClient.Port),
			Password: conf.RedisClient.Password,
			DB:       conf.RedisClient.DB,
		})
		if err := rclient.Ping(ctx).Err(); err != nil {
			_ = rclient.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.WithField("addr", rclient.Options().Addr).Info("[App] Redisストアを使用します")
		return plugins.NewRedisClient(rclient, plugins.RedisClientConfig{
			EntryPrefix:  conf.RedisKeys.EntryPrefix,
			MarkerPrefix: conf.RedisKeys.MarkerPrefix,
			ScanCount:    conf.RedisKeys.ScanCount,
			Expiration:   conf.Cache.TTL * 2,
		}), rclient.Close, nil

	case config.DriverPostgres:
		db, err := plugins.OpenPostgres(plugins.PostgresConfig{
			Host:     conf.Postgres.Host,
			Port:     conf.Postgres.Port,
			User:     conf.Postgres.User,
			Password: conf.Postgres.Password,
			DBName:   conf.Postgres.DBName,
			SSLMode:  conf.Postgres.SSLMode,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		client, err := plugins.NewGormClient(db)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
		}
		log.WithFields(log.Fields{"host": conf.Postgres.Host, "db": conf.Postgres.DBName}).Info("[App] PostgreSQLストアを使用します")
		return client, sqlDB.Close, nil

	default:
		log.Warn("[App] メモリストアを使用します（再起動で内容は失われます）")
		return plugins.NewMemoryClient(), noop, nil
	}
}
