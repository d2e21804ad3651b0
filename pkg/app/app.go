package app

import (
	"context"
	"fmt"
	"log/slog"

	"c2fs/pkg/config"
	"c2fs/pkg/factory"
	"c2fs/pkg/meta"
	"c2fs/pkg/storage/cache"
)

// App 是整个应用程序的依赖容器
// 它持有所有“单例”服务
type App struct {
	Config  *config.Config
	Log     *slog.Logger
	Factory *factory.Factory
	// Meta 仅在配置了 meta.driver 时非 nil
	Meta *meta.Repository

	metaDB *meta.DB
}

// New 按配置组装 App，不关心具体的 CLI 命令
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Log: log}

	opts := FactoryOptions(cfg, log)
	if cfg.Meta.Driver != "" {
		db, err := meta.Open(ctx, meta.Config{Driver: cfg.Meta.Driver, DSN: cfg.Meta.DSN})
		if err != nil {
			return nil, fmt.Errorf("failed to init meta: %w", err)
		}
		a.metaDB = db
		a.Meta = meta.NewRepository(db)
		opts.Indexer = a.Meta
	}

	a.Factory = factory.New(opts)
	return a, nil
}

// FactoryOptions 把配置映射为 factory.Options (不含索引器)
func FactoryOptions(cfg *config.Config, log *slog.Logger) factory.Options {
	s3cfg := cfg.S3
	opts := factory.Options{
		Logger:           log,
		DialTimeout:      cfg.Remote.DialTimeout,
		S3:               &s3cfg,
		CompressionLevel: cfg.CA.CompressionLevel,
		RefcountDir:      cfg.CA.RefcountDB,
	}
	if cfg.Cache.RedisURL != "" {
		opts.Cache = &cache.Config{RedisURL: cfg.Cache.RedisURL, TTL: cfg.Cache.TTL}
	}
	return opts
}

// Close 释放 Factory 与数据库连接
func (a *App) Close() error {
	err := a.Factory.Close()
	if a.metaDB != nil {
		if cerr := a.metaDB.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
