package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/moon-harvester/pkg/config"
)

var version = "1.0.0"

var (
	cfgFile      string
	verbose      bool
	operatorFlag string

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Reply to forum posts and build conversational datasets from them",
	Long: `harvester watches a subreddit, shows each new post to an operator and
submits the chosen reply. Posts that were answered or skipped are remembered
and never shown again.

It can also export top threads as chat-format JSONL and validate such files.

Examples:
  harvester                      # interactive menu
  harvester fetch --operator auto
  harvester stream --operator telegram
  harvester export --output reddit_data.jsonl
  harvester validate reddit_data.jsonl`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runMenu,
	Annotations:       map[string]string{interactive: "true"},
}

func init() {
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(validateCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&operatorFlag, "operator", "", "Who takes decisions: console, telegram or auto")
}

// interactive marks commands that own the terminal; their logs go to the log file only.
const interactive = "interactive"

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if operatorFlag != "" {
		cfg.Harvester.Operator = operatorFlag
	}

	ownsTerminal := cmd.Annotations[interactive] == "true" && cfg.Harvester.Operator == "console"
	logger, err = newLogger(cfg.Log, verbose, ownsTerminal)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func newLogger(lc config.LogConfig, verbose, fileOnly bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
	}

	if lc.Level != "" && !verbose {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	zc.OutputPaths = []string{"stderr"}
	if lc.File != "" {
		if fileOnly {
			zc.OutputPaths = []string{lc.File}
		} else {
			zc.OutputPaths = append(zc.OutputPaths, lc.File)
		}
	}
	return zc.Build()
}
