package domain

import (
	"errors"
	"strings"
)

var (
	// ErrUnreachableMigrations は NOT_ON_DEPLOY の後に通常のマイグレーションが存在する場合のエラー。
	ErrUnreachableMigrations = errors.New("unreachable migrations")

	// ErrAppNotFound は指定されたアプリケーションのmigrationsディレクトリが存在しない場合のエラー。
	ErrAppNotFound = errors.New("app not found")

	// ErrInvalidAppLabel はアプリケーションラベルの形式が不正な場合のエラー。
	ErrInvalidAppLabel = errors.New("invalid app label")

	// ErrMigrationNotFound は指定されたマイグレーションが存在しない場合のエラー。
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrMigrationDeclined は対話モードで適用が拒否された場合のエラー。
	ErrMigrationDeclined = errors.New("migration declined")

	// ErrNoConfirmationInput は対話モードで確認の入力が得られなかった場合のエラー。
	ErrNoConfirmationInput = errors.New("no confirmation input")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

// UnreachableMigrationsError はデプロイ時に決して適用されないマイグレーションの一覧を保持する。
type UnreachableMigrationsError struct {
	Migrations []*Migration
}

func (e *UnreachableMigrationsError) Error() string {
	names := make([]string, len(e.Migrations))
	for i, m := range e.Migrations {
		names[i] = m.String()
	}
	return "the following migrations are unreachable for a deploy migration: " + strings.Join(names, " ")
}

// Is は errors.Is(err, ErrUnreachableMigrations) を成立させる。
func (e *UnreachableMigrationsError) Is(target error) bool {
	return target == ErrUnreachableMigrations
}

// AppLabels は到達不能なマイグレーションを含むアプリケーションラベルを出現順に返す。
func (e *UnreachableMigrationsError) AppLabels() []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, m := range e.Migrations {
		if _, ok := seen[m.AppLabel]; ok {
			continue
		}
		seen[m.AppLabel] = struct{}{}
		labels = append(labels, m.AppLabel)
	}
	return labels
}
