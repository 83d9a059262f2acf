// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"log/slog"
	"time"

	"deploy-migrate/internal/domain"

	"gorm.io/gorm"
)

// SchemaMigrationModel はschema_migrationsテーブルのモデル。
type SchemaMigrationModel struct {
	AppLabel  string    `gorm:"column:app_label;primaryKey;type:varchar(128)"`
	Name      string    `gorm:"column:name;primaryKey;type:varchar(255)"`
	AppliedAt time.Time `gorm:"column:applied_at;not null;autoCreateTime"`
}

// TableName はテーブル名を指定。
func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *SchemaMigrationModel) toDomain() *domain.Migration {
	appliedAt := m.AppliedAt
	return &domain.Migration{
		AppLabel:  m.AppLabel,
		Name:      m.Name,
		AppliedAt: &appliedAt,
		Status:    domain.MigrationStatusApplied,
	}
}

// MigrationRepository はマイグレーション履歴を管理するリポジトリ。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// EnsureTable はschema_migrationsテーブルが存在しない場合に作成する。
func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigrationModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to ensure schema_migrations table",
			"operation", "ensure_table",
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllApplied は指定アプリケーションの適用済みマイグレーション一覧を取得する。
func (r *MigrationRepository) FindAllApplied(ctx context.Context, appLabel string) ([]*domain.Migration, error) {
	var models []SchemaMigrationModel
	err := r.db.WithContext(ctx).
		Where("app_label = ?", appLabel).
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all applied migrations",
			"operation", "find_all_applied",
			"app_label", appLabel,
			"error", err,
		)
		return nil, err
	}

	migrations := make([]*domain.Migration, len(models))
	for i := range models {
		migrations[i] = models[i].toDomain()
	}

	return migrations, nil
}

// RecordMigration はマイグレーション適用履歴を記録する。
func (r *MigrationRepository) RecordMigration(ctx context.Context, appLabel, name string) error {
	model := &SchemaMigrationModel{
		AppLabel: appLabel,
		Name:     name,
	}
	err := r.db.WithContext(ctx).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record_migration",
			"app_label", appLabel,
			"name", name,
			"error", err,
		)
		return err
	}
	return nil
}

// IsMigrationApplied はマイグレーションが適用済みか確認する。
func (r *MigrationRepository) IsMigrationApplied(ctx context.Context, appLabel, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SchemaMigrationModel{}).
		Where("app_label = ? AND name = ?", appLabel, name).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to check if migration is applied",
			"operation", "is_migration_applied",
			"app_label", appLabel,
			"name", name,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}
