package domain

// DeployOutcome はアプリケーションごとのデプロイ時マイグレーション結果を表す。
type DeployOutcome string

const (
	// DeployOutcomeSkipped は先頭のマイグレーションが NOT_ON_DEPLOY のため適用しなかった。
	DeployOutcomeSkipped DeployOutcome = "skipped"
	// DeployOutcomeMigratedFully はすべて適用した。
	DeployOutcomeMigratedFully DeployOutcome = "migrated_fully"
	// DeployOutcomeMigratedPartially は NOT_ON_DEPLOY の直前で停止した。
	DeployOutcomeMigratedPartially DeployOutcome = "migrated_partially"
	// DeployOutcomeDeclined は対話モードでオペレーターが適用を拒否した。
	DeployOutcomeDeclined DeployOutcome = "declined"
)

// MigrateOptions は実行エンジンにそのまま渡されるオプション。
type MigrateOptions struct {
	Interactive bool
}

// DeployOptions はデプロイ時マイグレーションのオプション。
type DeployOptions struct {
	Strict      bool
	Interactive bool
}

// AppPlan はアプリケーションごとの適用計画（ドライラン結果）。
type AppPlan struct {
	AppLabel   string
	Pending    []*Migration
	StopPoints StopPoints
}

// AppResult はアプリケーションごとの適用結果。
type AppResult struct {
	AppLabel  string
	StopPoint StopPoint
	Outcome   DeployOutcome
	Applied   int
}

// DeployReport はデプロイ時マイグレーション全体の結果。
type DeployReport struct {
	RunID   string
	Results []*AppResult
}

// NothingToMigrate は何も適用対象がなかったかどうかを返す。
func (r *DeployReport) NothingToMigrate() bool {
	for _, res := range r.Results {
		if res.Outcome == DeployOutcomeMigratedFully || res.Outcome == DeployOutcomeMigratedPartially {
			return false
		}
	}
	return true
}

// DeclinedApps は対話モードで適用が拒否されたアプリケーションラベルを返す。
func (r *DeployReport) DeclinedApps() []string {
	var labels []string
	for _, res := range r.Results {
		if res.Outcome == DeployOutcomeDeclined {
			labels = append(labels, res.AppLabel)
		}
	}
	return labels
}
