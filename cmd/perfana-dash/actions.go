package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

func actionCommands() []*cobra.Command {
	var reprocessCmd = &cobra.Command{
		Use:   "reprocess [testRunId]",
		Short: "Apply pending comparison configuration changes to a test run",
		Args:  cobra.ExactArgs(1),
		RunE:  runReprocess,
	}
	reprocessCmd.Flags().Bool("control-group", false, "Also re-select the control group of the test run")
	addRouteFlags(reprocessCmd)

	var resolveCmd = &cobra.Command{
		Use:   "resolve [testRunId]",
		Short: "Accept or deny the regressions of a test run",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}
	resolveCmd.Flags().String("resolution", "", "ACCEPTED or DENIED (required)")
	resolveCmd.Flags().Bool("update-control-group", false, "Recompute control group membership after resolving")
	addRouteFlags(resolveCmd)

	return []*cobra.Command{reprocessCmd, resolveCmd}
}

func resolvedRun(p *perfana, route testrun.RouteParams) (*models.TestRun, error) {
	run, ok := testrun.Resolve(p.store, route)
	if !ok {
		return nil, fmt.Errorf("test run %s: %w", route.TestRunID, errNotFound)
	}
	return run, nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	includeControlGroup, _ := cmd.Flags().GetBool("control-group")
	return withRun(cmd, args[0], func(ctx context.Context, p *perfana, route testrun.RouteParams) error {
		run, err := resolvedRun(p, route)
		if err != nil {
			return err
		}
		if err := p.remote.ProcessPendingDsCompareConfigChanges(ctx, run, includeControlGroup); err != nil {
			return err
		}
		fmt.Printf("Reprocessing %s\n", run.TestRunID)
		return nil
	})
}

func runResolve(cmd *cobra.Command, args []string) error {
	resolution := models.Resolution(mustString(cmd, "resolution"))
	if !resolution.Valid() {
		return fmt.Errorf("--resolution must be %s or %s", models.ResolutionAccepted, models.ResolutionDenied)
	}
	updateControlGroup, _ := cmd.Flags().GetBool("update-control-group")

	return withRun(cmd, args[0], func(ctx context.Context, p *perfana, route testrun.RouteParams) error {
		run, err := resolvedRun(p, route)
		if err != nil {
			return err
		}
		if err := p.remote.ResolveRegression(ctx, run, resolution, updateControlGroup); err != nil {
			return err
		}
		fmt.Printf("Regressions of %s marked %s\n", run.TestRunID, resolution)
		return nil
	})
}
