package usecase

import "deploy-migrate/internal/domain"

// ResolveStopPoints はアプリケーションごとにデプロイ時の適用停止位置を求める。
//
// migrations はアプリケーションごとにまとまり、各アプリケーション内で適用順に
// 並んでいることを前提とする（この関数では検証しない）。
// NOT_ON_DEPLOY のマイグレーションが見つかった場合はその直前で停止し、
// 入力全体の先頭要素であれば一件も適用しない。直前の判定はアプリケーション単位ではなく
// 入力全体の一つ前の要素に対して行う。
//
// 停止位置より後ろに通常のマイグレーションがある場合、strict であれば
// *domain.UnreachableMigrationsError を返す。strict でなければそのまま停止位置を返す。
func ResolveStopPoints(migrations []*domain.Migration, strict bool) (domain.StopPoints, error) {
	appsToMigrate := make(map[string]struct{})
	unreachable := make(map[string][]*domain.Migration)
	var unreachableOrder []string
	stopPoints := make(domain.StopPoints)

	var previous *domain.Migration
	for _, migration := range migrations {
		label := migration.AppLabel
		_, stopped := stopPoints[label]

		switch {
		case migration.NotOnDeploy():
			if stopped {
				// 最初の停止位置を優先する
				break
			}
			if previous == nil {
				stopPoints[label] = domain.ApplyNone()
			} else {
				stopPoints[label] = domain.ApplyUpTo(previous.Name)
			}
		case stopped:
			if _, ok := unreachable[label]; !ok {
				unreachableOrder = append(unreachableOrder, label)
			}
			unreachable[label] = append(unreachable[label], migration)
		default:
			appsToMigrate[label] = struct{}{}
		}

		previous = migration
	}

	for label := range appsToMigrate {
		if _, ok := stopPoints[label]; !ok {
			stopPoints[label] = domain.ApplyAll()
		}
	}

	if len(unreachable) > 0 && strict {
		var flattened []*domain.Migration
		for _, label := range unreachableOrder {
			flattened = append(flattened, unreachable[label]...)
		}
		return nil, &domain.UnreachableMigrationsError{Migrations: flattened}
	}

	return stopPoints, nil
}
