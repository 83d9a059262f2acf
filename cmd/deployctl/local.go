package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"deploy-migrate/config"
	"deploy-migrate/internal/infra"
	"deploy-migrate/internal/repository"
	"deploy-migrate/internal/usecase"
)

// localEnv はデータベースに直接接続するサブコマンドの実行環境。
type localEnv struct {
	cfg        *config.Config
	db         *gorm.DB
	migrations *usecase.MigrationService
	shutdown   infra.ShutdownFunc
}

// openLocal は設定を読み込み、ロガー・トレーサー・DB・MigrationServiceを初期化する。
func openLocal(ctx context.Context) (*localEnv, error) {
	cfg := config.Load()
	cfg.Version = version

	// 進捗表示と混ざらないようログは標準エラー出力へ
	infra.SetupLogger(cfg, os.Stderr)

	shutdown, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 絶対パスに変換
	absPath, err := filepath.Abs(cfg.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations directory: %w", err)
	}

	repo := repository.NewMigrationRepository(db)
	if err := repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	return &localEnv{
		cfg:        cfg,
		db:         db,
		migrations: usecase.NewMigrationService(repo, db, absPath),
		shutdown:   shutdown,
	}, nil
}

// Close はDB接続とトレーサーを停止する。
func (e *localEnv) Close(ctx context.Context) {
	if sqlDB, err := e.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close database", "error", err)
		}
	}
	if err := e.shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shutdown tracer", "error", err)
	}
}
