package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-migrate/internal/domain"
)

func mig(app, name string) *domain.Migration {
	return domain.NewMigration(app, name, domain.EligibilityUnspecified)
}

func migAttr(app, name string, runOnDeploy bool) *domain.Migration {
	return domain.NewMigration(app, name, domain.EligibilityFromBool(runOnDeploy))
}

func TestResolveStopPoints(t *testing.T) {
	tests := []struct {
		name       string
		migrations []*domain.Migration
		want       domain.StopPoints
	}{
		{
			name:       "empty",
			migrations: nil,
			want:       domain.StopPoints{},
		},
		{
			name: "only stop",
			migrations: []*domain.Migration{
				mig("app02", "0002_two_NOT_ON_DEPLOY"),
			},
			want: domain.StopPoints{"app02": domain.ApplyNone()},
		},
		{
			name: "normal",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
			},
			want: domain.StopPoints{"app01": domain.ApplyAll(), "app02": domain.ApplyAll()},
		},
		{
			name: "stop",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
				mig("app02", "0002_two_NOT_ON_DEPLOY"),
			},
			want: domain.StopPoints{"app01": domain.ApplyAll(), "app02": domain.ApplyUpTo("0001_initial")},
		},
		{
			name: "consecutive stops keep the first",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
				mig("app02", "0002_two_NOT_ON_DEPLOY"),
				mig("app02", "0003_three_NOT_ON_DEPLOY"),
			},
			want: domain.StopPoints{"app01": domain.ApplyAll(), "app02": domain.ApplyUpTo("0001_initial")},
		},
		{
			name: "stop by attribute",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
				migAttr("app02", "0002_two", false),
			},
			want: domain.StopPoints{"app01": domain.ApplyAll(), "app02": domain.ApplyUpTo("0001_initial")},
		},
		{
			name: "eligible attribute does not stop",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
				migAttr("app02", "0002_two", true),
			},
			want: domain.StopPoints{"app01": domain.ApplyAll(), "app02": domain.ApplyAll()},
		},
		{
			name: "single app stop at position k",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app01", "0003_three"),
				mig("app01", "0004_four_NOT_ON_DEPLOY"),
			},
			want: domain.StopPoints{"app01": domain.ApplyUpTo("0003_three")},
		},
		{
			// 直前の判定は入力全体の一つ前の要素に対して行われる
			name: "first migration of a later app stops at the global previous",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app02", "0001_initial_NOT_ON_DEPLOY"),
			},
			want: domain.StopPoints{"app01": domain.ApplyAll(), "app02": domain.ApplyUpTo("0001_initial")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveStopPoints(tt.migrations, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveStopPoints_Unreachable(t *testing.T) {
	tests := []struct {
		name       string
		migrations []*domain.Migration
	}{
		{
			name: "name marker",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
				mig("app02", "0002_two_NOT_ON_DEPLOY"),
				mig("app02", "0003_three"),
			},
		},
		{
			name: "attribute",
			migrations: []*domain.Migration{
				mig("app01", "0001_initial"),
				mig("app01", "0002_two"),
				mig("app02", "0001_initial"),
				migAttr("app02", "0002_two", false),
				mig("app02", "0003_three"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+" strict", func(t *testing.T) {
			_, err := ResolveStopPoints(tt.migrations, true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrUnreachableMigrations))

			var unreachable *domain.UnreachableMigrationsError
			require.ErrorAs(t, err, &unreachable)
			require.Len(t, unreachable.Migrations, 1)
			assert.Equal(t, "app02.0003_three", unreachable.Migrations[0].String())
		})

		t.Run(tt.name+" lenient", func(t *testing.T) {
			got, err := ResolveStopPoints(tt.migrations, false)
			require.NoError(t, err)
			assert.Equal(t, domain.StopPoints{
				"app01": domain.ApplyAll(),
				"app02": domain.ApplyUpTo("0001_initial"),
			}, got)
		})
	}
}

func TestResolveStopPoints_UnreachableListsExactlyOffenders(t *testing.T) {
	migrations := []*domain.Migration{
		mig("app01", "0001_initial"),
		mig("app01", "0002_two_NOT_ON_DEPLOY"),
		mig("app01", "0003_three"),
		mig("app01", "0004_four_NOT_ON_DEPLOY"),
		mig("app01", "0005_five"),
	}

	_, err := ResolveStopPoints(migrations, true)

	var unreachable *domain.UnreachableMigrationsError
	require.ErrorAs(t, err, &unreachable)
	names := make([]string, len(unreachable.Migrations))
	for i, m := range unreachable.Migrations {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"0003_three", "0005_five"}, names)
	assert.Equal(t, []string{"app01"}, unreachable.AppLabels())
}

func TestResolveStopPoints_DoesNotMutateInput(t *testing.T) {
	migrations := []*domain.Migration{
		mig("app01", "0001_initial"),
		mig("app01", "0002_two_NOT_ON_DEPLOY"),
	}

	first, err := ResolveStopPoints(migrations, true)
	require.NoError(t, err)
	second, err := ResolveStopPoints(migrations, true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "0002_two_NOT_ON_DEPLOY", migrations[1].Name)
	assert.Equal(t, domain.MigrationStatusPending, migrations[1].Status)
}
