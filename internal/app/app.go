package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/core/config"
	"loan-ledger/internal/core/database"
	"loan-ledger/internal/core/lock"
	"loan-ledger/internal/repo"
	"loan-ledger/internal/service"
	"loan-ledger/internal/transport/http/router"
)

// Build 打开数据库、选择锁实现并组装服务，两个二进制共用
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (router.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return router.Deps{}, cleanup, err
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, func() { _ = sqlDB.Close() })
	}
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db, repo.Models(), repo.SchemaExtras(cfg.DB.Driver)...); err != nil {
			return router.Deps{}, cleanup, err
		}
		log.Info("automigrate done")
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return router.Deps{}, cleanup, err
	}
	closers = append(closers, closeLocker)

	jwter, err := auth.NewJWTer(cfg.JWT.Secret, cfg.JWT.Issuer,
		time.Duration(cfg.JWT.AccessTokenTTLMin)*time.Minute)
	if err != nil {
		return router.Deps{}, cleanup, fmt.Errorf("jwt: %w", err)
	}

	tx := repo.NewTxManager(db)
	catalogueRepo := repo.NewCatalogueRepo(db)
	userRepo := repo.NewUserRepo(db)

	return router.Deps{
		Log:       log,
		Config:    cfg,
		JWT:       jwter,
		Catalogue: service.NewCatalogueService(catalogueRepo, tx, locker, log.Named("catalogue")),
		Users:     service.NewUserService(userRepo, log.Named("users")),
		Loans: service.NewLoanService(service.LoanDeps{
			Loans:         repo.NewLoanRepo(db),
			Catalogue:     catalogueRepo,
			Users:         userRepo,
			Tx:            tx,
			Locker:        locker,
			Log:           log.Named("loans"),
			AutoAcceptMax: cfg.Ledger.AutoAcceptMax,
		}),
	}, cleanup, nil
}

func openDB(cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		SlowThreshold:      200 * time.Millisecond,
		Log:                l,
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	return db, nil
}

// 配了 redis 用分布式锁（多副本），否则用进程内锁
func newLocker(ctx context.Context, cfg *config.Config, l *zap.Logger) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		l.Info("admission locker", zap.String("kind", "local"))
		return lock.NewLocal(), func() {}, nil
	}
	r := lock.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Ledger.LockTTL)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(pctx); err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	l.Info("admission locker", zap.String("kind", "redis"), zap.String("addr", cfg.Redis.Addr))
	return r, func() { _ = r.Close() }, nil
}
