package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/pipeline"
)

type Runner interface {
	Fetch(ctx context.Context) (pipeline.Stats, error)
	Stream(ctx context.Context) (pipeline.Stats, error)
	FetchThenStream(ctx context.Context) (pipeline.Stats, error)
}

type Clearer interface {
	Clear(ctx context.Context) error
}

type Menu struct {
	term   *Terminal
	runner Runner
	store  Clearer
	logger *zap.Logger
}

// NewMenu shares term with the processor so both read the same input.
func NewMenu(term *Terminal, runner Runner, store Clearer, logger *zap.Logger) *Menu {
	return &Menu{
		term:   term,
		runner: runner,
		store:  store,
		logger: logger,
	}
}

func (m *Menu) show() {
	fmt.Fprintln(m.term.out)
	fmt.Fprintln(m.term.out, "1) Fetch recent posts")
	fmt.Fprintln(m.term.out, "2) Stream new posts")
	fmt.Fprintln(m.term.out, "3) Fetch, then stream")
	fmt.Fprintln(m.term.out, "4) Clear processed posts")
	fmt.Fprintln(m.term.out, "q) Quit")
}

// Run loops over the menu until the operator quits, the input ends or ctx is
// cancelled. Only errors that end the run are returned.
func (m *Menu) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		m.show()
		line, err := m.term.prompt("Select an option: ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var run func(context.Context) (pipeline.Stats, error)
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "1", "fetch":
			run = m.runner.Fetch
		case "2", "stream":
			run = m.runner.Stream
		case "3", "fetch-then-stream":
			run = m.runner.FetchThenStream
		case "4", "clear":
			if err := m.clear(ctx); err != nil {
				return err
			}
			continue
		case "q", "quit", "exit":
			return nil
		default:
			fmt.Fprintln(m.term.out, "Unknown option")
			continue
		}

		stats, err := run(ctx)
		if err != nil {
			if pipeline.IsFatal(err) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("Run failed", zap.Error(err))
			m.term.Notify(fmt.Sprintf("Run failed: %v", err))
			continue
		}
		m.term.Notify(fmt.Sprintf("Done: %d seen, %d submitted, %d skipped, %d already processed, %d excluded, %d failed",
			stats.Seen, stats.Submitted, stats.Skipped, stats.AlreadyProcessed, stats.Excluded, stats.Failed))
	}
	return nil
}

func (m *Menu) clear(ctx context.Context) error {
	line, err := m.term.prompt("Forget every processed post? [y/N]: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
		fmt.Fprintln(m.term.out, "Nothing cleared")
		return nil
	}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("Failed to clear store", zap.Error(err))
		m.term.Notify(fmt.Sprintf("Clear failed: %v", err))
		return nil
	}
	m.term.Notify("Processed posts cleared")
	return nil
}
