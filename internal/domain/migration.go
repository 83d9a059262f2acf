// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"strings"
	"time"
)

// NotOnDeployMarker はデプロイ時に自動適用しないマイグレーションを示す名前の目印。
const NotOnDeployMarker = "NOT_ON_DEPLOY"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// DeployEligibility はマイグレーションファイルで明示されたデプロイ時適用可否を表す。
type DeployEligibility int

const (
	// EligibilityUnspecified は指定なし（適用可として扱う）。
	EligibilityUnspecified DeployEligibility = iota
	// EligibilityEligible は run_on_deploy: true が明示された状態。
	EligibilityEligible
	// EligibilityIneligible は run_on_deploy: false が明示された状態。
	EligibilityIneligible
)

// String はログ出力用の文字列表現を返す。
func (e DeployEligibility) String() string {
	switch e {
	case EligibilityEligible:
		return "eligible"
	case EligibilityIneligible:
		return "ineligible"
	default:
		return "unspecified"
	}
}

// EligibilityFromBool は run_on_deploy 属性の値から DeployEligibility を返す。
func EligibilityFromBool(runOnDeploy bool) DeployEligibility {
	if runOnDeploy {
		return EligibilityEligible
	}
	return EligibilityIneligible
}

// Migration はデータベースマイグレーションを表すドメインモデル
type Migration struct {
	AppLabel    string            // 所属アプリケーション（migrationsディレクトリ配下のディレクトリ名）
	Version     string            // マイグレーションバージョン（例: "0001"）
	Name        string            // マイグレーション名（拡張子を除いたファイル名、例: "0001_initial"）
	RunOnDeploy DeployEligibility // ファイルヘッダで指定されたデプロイ時適用可否
	AppliedAt   *time.Time        // 適用日時（未適用の場合はnil）
	FilePath    string            // マイグレーションファイルのパス
	Status      MigrationStatus   // 適用状態
}

// NewMigration はアプリケーションラベルと名前からMigrationを生成する。
func NewMigration(appLabel, name string, eligibility DeployEligibility) *Migration {
	return &Migration{
		AppLabel:    appLabel,
		Name:        name,
		RunOnDeploy: eligibility,
		Status:      MigrationStatusPending,
	}
}

// NotOnDeploy はデプロイ時に自動適用してはいけないマイグレーションかどうかを返す。
// 名前に NOT_ON_DEPLOY を含むか、run_on_deploy: false が指定されている場合に true。
func (m *Migration) NotOnDeploy() bool {
	if strings.Contains(m.Name, NotOnDeployMarker) {
		return true
	}
	return m.RunOnDeploy == EligibilityIneligible
}

// String は "app_label.name" 形式の識別子を返す。
func (m *Migration) String() string {
	return m.AppLabel + "." + m.Name
}
