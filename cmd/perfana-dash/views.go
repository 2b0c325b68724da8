package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/charts"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/rpcserver"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

func viewCommands() []*cobra.Command {
	var summaryCmd = &cobra.Command{
		Use:   "summary [testRunId]",
		Short: "Show the header of a test run",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummary,
	}

	var compareCmd = &cobra.Command{
		Use:   "compare [testRunId]",
		Short: "Show the comparison results of a test run",
		Long:  "Show the filtered and sorted metric comparison table of a test run against its baseline.",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompare,
	}
	compareCmd.Flags().String("category", "", "Only show results of this metric classification")
	compareCmd.Flags().String("conclusion", "", "Only show results with this conclusion")
	compareCmd.Flags().String("ignore", "", "Only show ignored (true) or not ignored (false) results")
	compareCmd.Flags().String("sort", "", "Sort by conclusion, metric or pctDiff")
	compareCmd.Flags().Bool("desc", false, "Sort descending")

	var checksCmd = &cobra.Command{
		Use:   "checks [testRunId]",
		Short: "Show the requirement and benchmark checks of a test run",
		Args:  cobra.ExactArgs(1),
		RunE:  runChecks,
	}
	checksCmd.Flags().Bool("failed-only", false, "Only show failed checks")
	checksCmd.Flags().Bool("details", false, "Show target details of passed checks")
	checksCmd.Flags().String("filter", "", "Only show panels matching this text")

	var chartCmd = &cobra.Command{
		Use:   "chart [testRunId]",
		Short: "Render a metric chart",
		Long:  "Render the time series of a panel metric, optionally against the previous or a baseline run, as PNG or plotly JSON.",
		Args:  cobra.ExactArgs(1),
		RunE:  runChart,
	}
	chartCmd.Flags().String("dashboard", "", "Dashboard uid (required)")
	chartCmd.Flags().Int("panel", -1, "Panel id (required)")
	chartCmd.Flags().String("metric", "", "Metric name")
	chartCmd.Flags().String("compare", "", fmt.Sprintf("Compare with %q or a baseline test run id", builder.ComparePrevious))
	chartCmd.Flags().Bool("tracked", false, "Chart the tracked regression history instead")
	chartCmd.Flags().StringP("out", "O", "", "Output file, .png or .json (default <testRunId>.png)")
	chartCmd.Flags().Int("width", 1024, "PNG width")
	chartCmd.Flags().Int("height", 480, "PNG height")

	var queryCmd = &cobra.Command{
		Use:   "query [testRunId]",
		Short: "Query a running dashboard server over gRPC",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().String("addr", "", "gRPC address of the server (default localhost:<rpc_port>)")
	queryCmd.Flags().String("view", "summary", "View to fetch: summary, comparison or checks")

	cmds := []*cobra.Command{summaryCmd, compareCmd, checksCmd, chartCmd, queryCmd}
	for _, c := range cmds {
		addRouteFlags(c)
	}
	for _, c := range []*cobra.Command{summaryCmd, compareCmd, checksCmd} {
		c.Flags().StringP("output", "o", outputTable, "Output format: table or json")
	}
	return cmds
}

func addRouteFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("application", "a", "", "Application of the test run")
	cmd.Flags().StringP("environment", "e", "", "Test environment of the test run")
	cmd.Flags().StringP("type", "t", "", "Test type of the test run")
}

func routeFrom(cmd *cobra.Command, testRunID string) testrun.RouteParams {
	route := testrun.RouteParams{TestRunID: testRunID}
	route.Application, _ = cmd.Flags().GetString("application")
	route.TestEnvironment, _ = cmd.Flags().GetString("environment")
	route.TestType, _ = cmd.Flags().GetString("type")
	return route
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withRun connects, loads the test run and hands the connection to fn
func withRun(cmd *cobra.Command, testRunID string, fn func(ctx context.Context, p *perfana, route testrun.RouteParams) error) error {
	ctx, stop := commandContext()
	defer stop()

	p, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	route := routeFrom(cmd, testRunID)
	if _, err := p.load(ctx, route); err != nil {
		return err
	}
	return fn(ctx, p, route)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	out, _ := cmd.Flags().GetString("output")
	if out != outputTable && out != outputJSON {
		return "", fmt.Errorf("unknown output format %q", out)
	}
	return out, nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	out, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	return withRun(cmd, args[0], func(ctx context.Context, p *perfana, route testrun.RouteParams) error {
		summary, ok := p.views.Summary(route)
		if !ok {
			return fmt.Errorf("test run %s: %w", route.TestRunID, errNotFound)
		}
		if out == outputJSON {
			return printJSON(summary)
		}
		printSummary(os.Stdout, summary)
		return nil
	})
}

func filterFrom(cmd *cobra.Command) (adapt.Filter, adapt.SortSpec, error) {
	var filter adapt.Filter
	var spec adapt.SortSpec

	if v, _ := cmd.Flags().GetString("category"); v != "" {
		c := models.ParseCategory(v)
		filter.Category = &c
	}
	if v, _ := cmd.Flags().GetString("conclusion"); v != "" {
		c, err := models.ParseConclusion(v)
		if err != nil {
			return filter, spec, err
		}
		filter.Conclusion = &c
	}
	if v, _ := cmd.Flags().GetString("ignore"); v != "" {
		b := v == "true"
		if !b && v != "false" {
			return filter, spec, fmt.Errorf("--ignore must be true or false")
		}
		filter.Ignore = &b
	}
	field, err := adapt.ParseSortField(mustString(cmd, "sort"))
	if err != nil {
		return filter, spec, err
	}
	spec.Field = field
	spec.Desc, _ = cmd.Flags().GetBool("desc")
	return filter, spec, nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func runCompare(cmd *cobra.Command, args []string) error {
	out, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	filter, spec, err := filterFrom(cmd)
	if err != nil {
		return err
	}
	return withRun(cmd, args[0], func(ctx context.Context, p *perfana, route testrun.RouteParams) error {
		view, ok := p.views.Comparison(route, filter, spec)
		if !ok {
			return fmt.Errorf("comparison results of %s: %w", route.TestRunID, errNotFound)
		}
		if out == outputJSON {
			return printJSON(view)
		}
		return printComparison(os.Stdout, view)
	})
}

func runChecks(cmd *cobra.Command, args []string) error {
	out, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	var opts checks.Options
	opts.FailedOnly, _ = cmd.Flags().GetBool("failed-only")
	opts.ShowPassedDetails, _ = cmd.Flags().GetBool("details")
	opts.Text, _ = cmd.Flags().GetString("filter")

	return withRun(cmd, args[0], func(ctx context.Context, p *perfana, route testrun.RouteParams) error {
		view, ok := p.views.Checks(route, opts)
		if !ok {
			return fmt.Errorf("checks of %s: %w", route.TestRunID, errNotFound)
		}
		if out == outputJSON {
			return printJSON(view)
		}
		return printChecks(os.Stdout, view)
	})
}

func runChart(cmd *cobra.Command, args []string) error {
	key := models.MetricKey{
		DashboardUID: mustString(cmd, "dashboard"),
		MetricName:   mustString(cmd, "metric"),
	}
	if panel, _ := cmd.Flags().GetInt("panel"); panel >= 0 {
		key.PanelID = &panel
	}
	if key.DashboardUID == "" || key.PanelID == nil {
		return fmt.Errorf("--dashboard and --panel are required")
	}
	tracked, _ := cmd.Flags().GetBool("tracked")
	compare := mustString(cmd, "compare")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	out := mustString(cmd, "out")
	if out == "" {
		out = args[0] + ".png"
	}

	return withRun(cmd, args[0], func(ctx context.Context, p *perfana, route testrun.RouteParams) error {
		var fig *charts.Figure
		var ok bool
		var err error
		if tracked {
			fig, ok, err = p.views.TrackedChart(ctx, p.remote, route, key)
		} else {
			fig, ok, err = p.views.MetricChart(ctx, p.remote, route, key, compare)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("chart data of %s: %w", route.TestRunID, errNotFound)
		}
		return writeChart(fig, out, width, height)
	})
}

func writeChart(fig *charts.Figure, path string, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.NewEncoder(f).Encode(fig)
	} else {
		err = charts.RenderPNG(*fig, f, width, height)
	}
	if err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	fmt.Printf("Chart written to %s\n", path)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	addr := mustString(cmd, "addr")
	if addr == "" {
		if cfg.RPCPort == 0 {
			return fmt.Errorf("--addr is required when rpc_port is not configured")
		}
		addr = fmt.Sprintf("localhost:%d", cfg.RPCPort)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, stop := commandContext()
	defer stop()

	client := rpcserver.NewClient(conn)
	route := routeFrom(cmd, args[0])
	var result interface{}
	switch view := mustString(cmd, "view"); view {
	case "summary":
		result, err = client.TestRunSummary(ctx, route)
	case "comparison":
		result, err = client.ComparisonView(ctx, rpcserver.ComparisonRequest{RouteParams: route})
	case "checks":
		result, err = client.CheckView(ctx, rpcserver.CheckRequest{RouteParams: route})
	default:
		return fmt.Errorf("unknown view %q", view)
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}
