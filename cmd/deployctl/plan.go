package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"deploy-migrate/internal/domain"
	"deploy-migrate/internal/usecase"
)

// pendingView は計画表示用の未適用マイグレーション。
type pendingView struct {
	AppLabel    string `json:"app_label"`
	Name        string `json:"name"`
	NotOnDeploy bool   `json:"not_on_deploy"`
}

// planView は計画表示用のアプリケーション単位の計画。APIのレスポンス形式と同じ。
type planView struct {
	AppLabel  string            `json:"app_label"`
	Pending   []pendingView     `json:"pending"`
	StopPoint *domain.StopPoint `json:"stop_point"`
}

// planCmd は適用計画の表示コマンド。データベースへの適用は行わない。
func planCmd() *cobra.Command {
	var noStrict bool
	cmd := &cobra.Command{
		Use:   "plan [app_label]",
		Short: "Show where deploy-migrate would stop for each app",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			appLabel := ""
			if len(args) == 1 {
				appLabel = args[0]
				if err := usecase.ValidateAppLabel(appLabel); err != nil {
					return err
				}
			}

			var strict *bool
			if cmd.Flags().Changed("no-strict") {
				s := !noStrict
				strict = &s
			}

			if apiURL != "" {
				return runRemotePlan(cmd.OutOrStdout(), appLabel, strict)
			}
			return runLocalPlan(ctx, cmd.OutOrStdout(), appLabel, strict)
		},
	}
	cmd.Flags().BoolVar(&noStrict, "no-strict", false, "Do not fail on unreachable migrations")
	return cmd
}

func runLocalPlan(ctx context.Context, w io.Writer, appLabel string, strict *bool) error {
	env, err := openLocal(ctx)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	useStrict := env.cfg.Strict
	if strict != nil {
		useStrict = *strict
	}

	service := usecase.NewDeployService(env.migrations, env.migrations)
	var plans []*domain.AppPlan
	if appLabel != "" {
		plan, err := service.PlanApp(ctx, appLabel, useStrict)
		if err != nil {
			return err
		}
		plans = []*domain.AppPlan{plan}
	} else {
		plans, err = service.Plan(ctx, useStrict)
		if err != nil {
			return err
		}
	}

	views := make([]planView, len(plans))
	for i, plan := range plans {
		views[i] = toPlanView(plan)
	}
	if output == "json" {
		if appLabel != "" {
			return json.NewEncoder(w).Encode(views[0])
		}
		return json.NewEncoder(w).Encode(map[string]interface{}{"apps": views})
	}
	return printPlans(w, views)
}

func runRemotePlan(w io.Writer, appLabel string, strict *bool) error {
	endpoint := fmt.Sprintf("%s/v1/plan", strings.TrimRight(apiURL, "/"))
	if appLabel != "" {
		endpoint = fmt.Sprintf("%s/v1/apps/%s/plan", strings.TrimRight(apiURL, "/"), url.PathEscape(appLabel))
	}
	if strict != nil {
		endpoint += "?strict=" + strconv.FormatBool(*strict)
	}

	resp, err := httpClient.Get(endpoint)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp.StatusCode, body)
	}

	if output == "json" {
		fmt.Fprintln(w, string(body))
		return nil
	}

	var views []planView
	if appLabel != "" {
		var view planView
		if err := json.Unmarshal(body, &view); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		views = []planView{view}
	} else {
		var result struct {
			Apps []planView `json:"apps"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		views = result.Apps
	}
	return printPlans(w, views)
}

func toPlanView(plan *domain.AppPlan) planView {
	view := planView{AppLabel: plan.AppLabel, Pending: make([]pendingView, len(plan.Pending))}
	for i, m := range plan.Pending {
		view.Pending[i] = pendingView{AppLabel: m.AppLabel, Name: m.Name, NotOnDeploy: m.NotOnDeploy()}
	}
	sp, ok := plan.StopPoints[plan.AppLabel]
	if !ok {
		sp = domain.ApplyNone()
	}
	view.StopPoint = &sp
	return view
}

// printPlans は計画をテーブル形式で出力する。
func printPlans(w io.Writer, views []planView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "APP\tPENDING\tSTOP POINT\tNOT_ON_DEPLOY")
	fmt.Fprintln(tw, "---\t-------\t----------\t-------------")

	for _, view := range views {
		// JSONの null は全件適用
		stopPoint := domain.ApplyAll()
		if view.StopPoint != nil {
			stopPoint = *view.StopPoint
		}

		var flagged []string
		for _, p := range view.Pending {
			if p.NotOnDeploy {
				flagged = append(flagged, p.Name)
			}
		}
		flaggedText := "-"
		if len(flagged) > 0 {
			flaggedText = strings.Join(flagged, ",")
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", view.AppLabel, len(view.Pending), stopPoint, flaggedText)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}
