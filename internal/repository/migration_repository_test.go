package repository

import (
	"context"
	"testing"

	"deploy-migrate/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// openTestDB はテスト用のインメモリSQLiteデータベースを開く。
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// :memory: は接続ごとに別DBになるため接続を一つに固定する
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

// setupTestDB はschema_migrationsテーブル作成済みのデータベースを返す。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := openTestDB(t)
	sql := `
		CREATE TABLE schema_migrations (
			app_label TEXT NOT NULL,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (app_label, name)
		);
	`
	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create schema_migrations table: %v", err)
	}

	return db
}

func TestMigrationRepository_RecordAndIsApplied(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	if err := repo.RecordMigration(ctx, "app01", "0001_initial"); err != nil {
		t.Fatalf("RecordMigration failed: %v", err)
	}

	// 記録済みの場合
	applied, err := repo.IsMigrationApplied(ctx, "app01", "0001_initial")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected applied=true, got false")
	}

	// 同名でも別アプリケーションは未適用
	applied, err = repo.IsMigrationApplied(ctx, "app02", "0001_initial")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if applied {
		t.Error("expected applied=false, got true")
	}
}

func TestMigrationRepository_RecordDuplicate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	if err := repo.RecordMigration(ctx, "app01", "0001_initial"); err != nil {
		t.Fatalf("RecordMigration failed: %v", err)
	}
	if err := repo.RecordMigration(ctx, "app01", "0001_initial"); err == nil {
		t.Error("expected error for duplicate record, got nil")
	}
}

func TestMigrationRepository_FindAllApplied(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	// テストデータを挿入（順不同）
	testData := []struct {
		app  string
		name string
	}{
		{"app01", "0002_two"},
		{"app01", "0001_initial"},
		{"app02", "0001_initial"},
	}
	for _, data := range testData {
		if err := db.Exec("INSERT INTO schema_migrations (app_label, name) VALUES (?, ?)", data.app, data.name).Error; err != nil {
			t.Fatalf("failed to insert test data: %v", err)
		}
	}

	migrations, err := repo.FindAllApplied(ctx, "app01")
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	expectedNames := []string{"0001_initial", "0002_two"}
	for i, m := range migrations {
		if m.Name != expectedNames[i] {
			t.Errorf("migrations[%d]: expected name=%s, got %s", i, expectedNames[i], m.Name)
		}
		if m.AppLabel != "app01" {
			t.Errorf("migrations[%d]: expected app_label=app01, got %s", i, m.AppLabel)
		}
		if m.Status != domain.MigrationStatusApplied {
			t.Errorf("migrations[%d]: expected status=applied, got %s", i, m.Status)
		}
		if m.AppliedAt == nil {
			t.Errorf("migrations[%d]: expected AppliedAt to be set", i)
		}
	}

	// 履歴がない場合
	migrations, err = repo.FindAllApplied(ctx, "app03")
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected empty slice, got %d migrations", len(migrations))
	}
}

func TestMigrationRepository_EnsureTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMigrationRepository(db)

	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	// 二回目も成功する
	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable (second call) failed: %v", err)
	}
	if err := repo.RecordMigration(ctx, "app01", "0001_initial"); err != nil {
		t.Fatalf("RecordMigration after EnsureTable failed: %v", err)
	}
}
