package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/console"
	"github.com/xaenox/moon-harvester/internal/dataset"
	"github.com/xaenox/moon-harvester/internal/pipeline"
)

var menuCmd = &cobra.Command{
	Use:         "menu",
	Short:       "Interactive menu: fetch, stream, fetch then stream, or clear the store",
	RunE:        runMenu,
	Annotations: map[string]string{interactive: "true"},
}

var fetchCmd = &cobra.Command{
	Use:         "fetch",
	Short:       "Process the most recent posts once",
	RunE:        runMode((*pipeline.Pipeline).Fetch),
	Annotations: map[string]string{interactive: "true"},
}

var streamCmd = &cobra.Command{
	Use:         "stream",
	Short:       "Process new posts as they arrive until interrupted",
	RunE:        runMode((*pipeline.Pipeline).Stream),
	Annotations: map[string]string{interactive: "true"},
}

var runCmd = &cobra.Command{
	Use:         "run",
	Short:       "Process the most recent posts, then stream new ones",
	RunE:        runMode((*pipeline.Pipeline).FetchThenStream),
	Annotations: map[string]string{interactive: "true"},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Fetch recent posts on a cron schedule",
	Long: `Fetch recent posts every time the schedule fires. The schedule takes
standard cron syntax or descriptors such as "@hourly" and "@every 30m".
A tick that fires while the previous fetch is still running is skipped.`,
	RunE:        runSchedule,
	Annotations: map[string]string{interactive: "true"},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every processed post",
	RunE:  runClear,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export top threads as chat-format JSONL",
	RunE:  runExport,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Count format errors in a JSONL dataset",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func init() {
	streamCmd.Flags().Bool("include-existing", false, "Also process posts that existed before the stream started")
	runCmd.Flags().Bool("include-existing", false, "Also process posts that existed before the stream started")
	scheduleCmd.Flags().String("cron", "", "Schedule (defaults to harvester.schedule)")
	clearCmd.Flags().Bool("yes", false, "Confirm clearing the store")

	exportCmd.Flags().StringP("output", "o", "", "Output file (defaults to dataset.output)")
	exportCmd.Flags().Int("limit", 0, "Number of top posts")
	exportCmd.Flags().String("timeframe", "", "Top posts timeframe: hour, day, week, month, year or all")
	exportCmd.Flags().Int("comments", 0, "Comments fetched per post")
	exportCmd.Flags().String("policy", "", "System message policy: every or first")
}

func runMenu(cmd *cobra.Command, args []string) error {
	a := stdApp()
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	return console.NewMenu(a.terminal, p, a.store, logger).Run(cmd.Context())
}

func runMode(mode func(*pipeline.Pipeline, context.Context) (pipeline.Stats, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("include-existing") {
			include, _ := cmd.Flags().GetBool("include-existing")
			cfg.Harvester.SkipExisting = !include
		}

		a := stdApp()
		defer a.Close()

		p, err := a.pipeline()
		if err != nil {
			return err
		}

		stats, err := mode(p, cmd.Context())
		logger.Info("Run finished",
			zap.String("command", cmd.Name()),
			zap.Int("seen", stats.Seen),
			zap.Int("submitted", stats.Submitted),
			zap.Int("skipped", stats.Skipped))
		return err
	}
}

func runSchedule(cmd *cobra.Command, args []string) error {
	spec, _ := cmd.Flags().GetString("cron")
	if spec == "" {
		spec = cfg.Harvester.Schedule
	}

	a := stdApp()
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	return p.Schedule(cmd.Context(), spec)
}

func runClear(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to clear the store without --yes")
	}

	store := openStore()
	defer store.Close()

	n, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d processed posts\n", n)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	opts := dataset.ExportOptions{
		Subreddit:       cfg.Dataset.Subreddit,
		Limit:           cfg.Dataset.Limit,
		Timeframe:       cfg.Dataset.Timeframe,
		CommentsPerPost: cfg.Dataset.CommentsPerPost,
		SystemPrompt:    cfg.Dataset.SystemPrompt,
	}
	output := cfg.Dataset.Output
	policyName := cfg.Dataset.SystemPolicy

	flags := cmd.Flags()
	if v, _ := flags.GetString("output"); v != "" {
		output = v
	}
	if v, _ := flags.GetInt("limit"); v > 0 {
		opts.Limit = v
	}
	if v, _ := flags.GetString("timeframe"); v != "" {
		opts.Timeframe = v
	}
	if v, _ := flags.GetInt("comments"); v > 0 {
		opts.CommentsPerPost = v
	}
	if v, _ := flags.GetString("policy"); v != "" {
		policyName = v
	}

	policy, err := dataset.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer f.Close()

	reddit := newReddit()
	exporter := dataset.NewExporter(reddit, moderationFilter(), policy, logger.Named("dataset"))
	n, err := exporter.Export(cmd.Context(), reddit, opts, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Data written to %s (%d records)\n", output, n)
	return f.Close()
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfg.Dataset.Output
	if len(args) == 1 {
		path = args[0]
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	report, err := dataset.Validate(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.OK() {
		fmt.Fprintf(out, "No errors found in %d records\n", report.Lines)
		return nil
	}
	fmt.Fprintln(out, "Found errors:")
	for _, kind := range report.Kinds() {
		fmt.Fprintf(out, "%s: %d\n", kind, report.Errors[kind])
	}
	return nil
}
