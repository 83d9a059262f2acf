package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"deploy-migrate/internal/domain"

	"gorm.io/gorm"
)

// runOnDeployDirective はマイグレーションファイル先頭のコメントで適用可否を指定するキー。
// 例: -- run_on_deploy: false
const runOnDeployDirective = "run_on_deploy"

var appLabelRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateAppLabel はアプリケーションラベルの形式を検証する。
func ValidateAppLabel(appLabel string) error {
	if appLabel == "" || len(appLabel) > 128 || !appLabelRegex.MatchString(appLabel) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAppLabel, appLabel)
	}
	return nil
}

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	FindAllApplied(ctx context.Context, appLabel string) ([]*domain.Migration, error)
	RecordMigration(ctx context.Context, appLabel, name string) error
	IsMigrationApplied(ctx context.Context, appLabel, name string) (bool, error)
}

// MigrationService はマイグレーションの検出と実行を提供する。
// migrationsディレクトリは {migrationsDir}/{app_label}/{version}_{name}.sql の構成とする。
type MigrationService struct {
	repo          MigrationRepository
	db            *gorm.DB
	migrationsDir string

	promptIn  *bufio.Reader
	promptOut io.Writer
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, migrationsDir string) *MigrationService {
	return &MigrationService{
		repo:          repo,
		db:            db,
		migrationsDir: migrationsDir,
	}
}

// WithPrompt は対話モードで使用する入出力を設定する。
func (s *MigrationService) WithPrompt(in io.Reader, out io.Writer) *MigrationService {
	s.promptIn = bufio.NewReader(in)
	s.promptOut = out
	return s
}

// ListApps はmigrationsディレクトリ配下のアプリケーションラベルを名前順に返す。
func (s *MigrationService) ListApps(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.migrationsDir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migrations directory",
			"operation", "list_apps",
			"migrations_dir", s.migrationsDir,
			"error", err,
		)
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var apps []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ValidateAppLabel(entry.Name()); err != nil {
			slog.WarnContext(ctx, "ignoring directory with invalid app label",
				"operation", "list_apps",
				"directory", entry.Name(),
			)
			continue
		}
		apps = append(apps, entry.Name())
	}

	// os.ReadDir はファイル名順で返すが念のためソートする
	sort.Strings(apps)
	return apps, nil
}

// scanMigrationFiles はアプリケーションのディレクトリから.sqlファイルをスキャンする。
func (s *MigrationService) scanMigrationFiles(ctx context.Context, appLabel string) ([]*domain.Migration, error) {
	if err := ValidateAppLabel(appLabel); err != nil {
		return nil, err
	}

	appDir := filepath.Join(s.migrationsDir, appLabel)
	entries, err := os.ReadDir(appDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAppNotFound, appLabel)
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*domain.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		filePath := filepath.Join(appDir, entry.Name())
		eligibility, err := readDeployEligibility(filePath)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read migration header",
				"operation", "scan_migration_files",
				"app_label", appLabel,
				"file_path", filePath,
				"error", err,
			)
			return nil, err
		}

		migration := domain.NewMigration(appLabel, name, eligibility)
		migration.Version = version
		migration.FilePath = filePath
		migrations = append(migrations, migration)
	}

	// バージョンを数値として比較する（9_x は 10_x より前）
	sort.SliceStable(migrations, func(i, j int) bool {
		vi, vj := versionNumber(migrations[i].Version), versionNumber(migrations[j].Version)
		if vi != vj {
			return vi < vj
		}
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{description}.sql (例: 0001_initial.sql)。version は数字のみ。
// 名前は拡張子を除いたファイル名全体（例: 0001_initial）。
func parseMigrationFileName(filename string) (version, name string, err error) {
	name = strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}

	if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
		return "", "", fmt.Errorf("%w: %s (version must be numeric)", domain.ErrInvalidMigrationFile, filename)
	}

	return parts[0], name, nil
}

// versionNumber は parseMigrationFileName で検証済みのバージョンを数値に変換する。
func versionNumber(version string) uint64 {
	n, _ := strconv.ParseUint(version, 10, 64)
	return n
}

// readDeployEligibility はファイル先頭のコメント行から run_on_deploy 指定を読み取る。
// SQL文が始まった時点で読み取りを終了する。
func readDeployEligibility(filePath string) (domain.DeployEligibility, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return domain.EligibilityUnspecified, fmt.Errorf("failed to open migration file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}

		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "--")), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), runOnDeployDirective) {
			continue
		}
		runOnDeploy, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return domain.EligibilityUnspecified, fmt.Errorf("%w: %s: %s must be true or false", domain.ErrInvalidMigrationFile, filePath, runOnDeployDirective)
		}
		return domain.EligibilityFromBool(runOnDeploy), nil
	}
	if err := scanner.Err(); err != nil {
		return domain.EligibilityUnspecified, fmt.Errorf("failed to read migration file: %w", err)
	}

	return domain.EligibilityUnspecified, nil
}

// PendingMigrations は指定アプリケーションの未適用マイグレーションを適用順に返す。
func (s *MigrationService) PendingMigrations(ctx context.Context, appLabel string) ([]*domain.Migration, error) {
	allMigrations, err := s.GetMigrationStatus(ctx, appLabel)
	if err != nil {
		return nil, err
	}

	var pending []*domain.Migration
	for _, migration := range allMigrations {
		if migration.Status == domain.MigrationStatusPending {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// Migrate は指定アプリケーションの未適用マイグレーションを target まで（target を含む）適用する。
// target が空の場合はすべて適用する。適用した件数を返す。
func (s *MigrationService) Migrate(ctx context.Context, appLabel, target string, opts domain.MigrateOptions) (int, error) {
	pending, err := s.PendingMigrations(ctx, appLabel)
	if err != nil {
		return 0, err
	}

	toApply := pending
	if target != "" {
		idx := -1
		for i, migration := range pending {
			if migration.Name == target {
				idx = i
				break
			}
		}
		if idx < 0 {
			applied, err := s.repo.IsMigrationApplied(ctx, appLabel, target)
			if err != nil {
				return 0, fmt.Errorf("failed to check migration status: %w", err)
			}
			if applied {
				return 0, nil
			}
			return 0, fmt.Errorf("%w: %s.%s", domain.ErrMigrationNotFound, appLabel, target)
		}
		toApply = pending[:idx+1]
	}

	if len(toApply) == 0 {
		return 0, nil
	}

	if opts.Interactive && s.promptIn != nil {
		ok, err := s.confirm(appLabel, toApply)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: %s", domain.ErrMigrationDeclined, appLabel)
		}
	}

	appliedCount := 0
	for _, migration := range toApply {
		if err := s.applyMigration(ctx, migration); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "migrate",
				"app_label", appLabel,
				"name", migration.Name,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: %s: %v", domain.ErrMigrationFailed, migration, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"operation", "migrate",
			"app_label", appLabel,
			"name", migration.Name,
		)
		appliedCount++
	}

	return appliedCount, nil
}

// confirm は適用前にオペレーターへ確認する。
func (s *MigrationService) confirm(appLabel string, migrations []*domain.Migration) (bool, error) {
	fmt.Fprintf(s.promptOut, "Apply %d migration(s) to %s (%s .. %s)? [y/N]: ",
		len(migrations), appLabel, migrations[0].Name, migrations[len(migrations)-1].Name)

	answer, err := s.promptIn.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		// 入力が閉じている場合は拒否ではなく失敗とする
		if strings.TrimSpace(answer) == "" {
			return false, fmt.Errorf("%w: %s", domain.ErrNoConfirmationInput, appLabel)
		}
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ApplyMigrations は全アプリケーションの未適用マイグレーションを NOT_ON_DEPLOY を含めてすべて適用する。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	apps, err := s.ListApps(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, app := range apps {
		count, err := s.Migrate(ctx, app, "", domain.MigrateOptions{})
		total += count
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// MarkApplied はマイグレーションを実行せずに適用済みとして記録する。
func (s *MigrationService) MarkApplied(ctx context.Context, appLabel, name string) error {
	allMigrations, err := s.scanMigrationFiles(ctx, appLabel)
	if err != nil {
		return err
	}

	found := false
	for _, migration := range allMigrations {
		if migration.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s.%s", domain.ErrMigrationNotFound, appLabel, name)
	}

	applied, err := s.repo.IsMigrationApplied(ctx, appLabel, name)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if applied {
		return nil
	}

	if err := s.repo.RecordMigration(ctx, appLabel, name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	slog.InfoContext(ctx, "migration marked as applied",
		"operation", "mark_applied",
		"app_label", appLabel,
		"name", name,
	)
	return nil
}

// applyMigration は単一のマイグレーションを実行する。
func (s *MigrationService) applyMigration(ctx context.Context, migration *domain.Migration) error {
	// SQLファイルを読み込み
	sqlBytes, err := os.ReadFile(migration.FilePath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migration file",
			"operation", "apply_migration",
			"app_label", migration.AppLabel,
			"name", migration.Name,
			"file_path", migration.FilePath,
			"error", err,
		)
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	// トランザクション内で実行
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(string(sqlBytes)).Error; err != nil {
			slog.ErrorContext(ctx, "failed to execute migration SQL",
				"operation", "apply_migration",
				"app_label", migration.AppLabel,
				"name", migration.Name,
				"error", err,
			)
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		// 履歴を記録（トランザクション内で実行するため、同じtxを使用）
		model := struct {
			AppLabel  string    `gorm:"column:app_label"`
			Name      string    `gorm:"column:name"`
			AppliedAt time.Time `gorm:"column:applied_at"`
		}{
			AppLabel:  migration.AppLabel,
			Name:      migration.Name,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Table("schema_migrations").Create(&model).Error; err != nil {
			slog.ErrorContext(ctx, "failed to record migration in schema_migrations",
				"operation", "apply_migration",
				"app_label", migration.AppLabel,
				"name", migration.Name,
				"error", err,
			)
			return fmt.Errorf("failed to record migration: %w", err)
		}

		return nil
	})
}

// GetMigrationStatus は現在のマイグレーション状況を取得する。
// appLabel が空の場合は全アプリケーションを対象とする。
func (s *MigrationService) GetMigrationStatus(ctx context.Context, appLabel string) ([]*domain.Migration, error) {
	apps := []string{appLabel}
	if appLabel == "" {
		var err error
		apps, err = s.ListApps(ctx)
		if err != nil {
			return nil, err
		}
	}

	var result []*domain.Migration
	for _, app := range apps {
		allMigrations, err := s.scanMigrationFiles(ctx, app)
		if err != nil {
			return nil, err
		}

		// 適用済みマイグレーション履歴を取得
		appliedMigrations, err := s.repo.FindAllApplied(ctx, app)
		if err != nil {
			slog.ErrorContext(ctx, "failed to fetch applied migrations",
				"operation", "get_migration_status",
				"app_label", app,
				"error", err,
			)
			return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
		}

		appliedMap := make(map[string]*domain.Migration)
		for _, migration := range appliedMigrations {
			appliedMap[migration.Name] = migration
		}

		for _, migration := range allMigrations {
			if applied, exists := appliedMap[migration.Name]; exists {
				migration.Status = domain.MigrationStatusApplied
				migration.AppliedAt = applied.AppliedAt
			}
		}
		result = append(result, allMigrations...)
	}

	return result, nil
}
