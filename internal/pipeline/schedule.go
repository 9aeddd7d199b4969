package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Schedule runs Fetch on every tick of spec (standard cron syntax or
// descriptors such as "@hourly" and "@every 30m") until ctx is cancelled.
// A tick that arrives while a fetch is still running is skipped.
func (p *Pipeline) Schedule(ctx context.Context, spec string) error {
	clog := cronLogger{sugar: p.logger.Sugar()}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.SkipIfStillRunning(clog)))

	fatal := make(chan error, 1)
	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		log := p.runLogger("scheduled_fetch")
		if _, err := p.fetch(ctx, log); err != nil && ctx.Err() == nil {
			if IsFatal(err) {
				select {
				case fatal <- err:
				default:
				}
				return
			}
			log.Error("Scheduled fetch failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	p.logger.Info("Scheduler started", zap.String("schedule", spec))
	c.Start()
	defer func() {
		<-c.Stop().Done()
		p.logger.Info("Scheduler stopped")
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-fatal:
		return err
	}
}
