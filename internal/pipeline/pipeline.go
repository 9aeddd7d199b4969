package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/forum"
	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/moderation"
	"github.com/xaenox/moon-harvester/internal/processor"
)

type Feed interface {
	FetchRecent(ctx context.Context, subreddit string, limit int) ([]models.Item, error)
	StreamNew(ctx context.Context, subreddit string, opts forum.StreamOptions) (<-chan models.Item, <-chan error)
}

type ItemProcessor interface {
	Process(ctx context.Context, item models.Item) (processor.Outcome, error)
}

type Excluder interface {
	Reason(item models.Item) moderation.Reason
}

type Config struct {
	Subreddit  string
	FetchLimit int
	Stream     forum.StreamOptions
}

type Stats struct {
	Seen             int
	Excluded         int
	AlreadyProcessed int
	Skipped          int
	Submitted        int
	Failed           int
}

func (s *Stats) add(o Stats) {
	s.Seen += o.Seen
	s.Excluded += o.Excluded
	s.AlreadyProcessed += o.AlreadyProcessed
	s.Skipped += o.Skipped
	s.Submitted += o.Submitted
	s.Failed += o.Failed
}

func (s Stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int("seen", s.Seen),
		zap.Int("excluded", s.Excluded),
		zap.Int("already_processed", s.AlreadyProcessed),
		zap.Int("skipped", s.Skipped),
		zap.Int("submitted", s.Submitted),
		zap.Int("failed", s.Failed),
	}
}

// Pipeline feeds forum items to the processor one at a time.
// All dedup store writes happen on the calling goroutine, in decision order.
type Pipeline struct {
	feed      Feed
	processor ItemProcessor
	filter    Excluder
	pacer     Pacer
	cfg       Config
	logger    *zap.Logger
}

// New builds a Pipeline. filter and pacer may be nil.
func New(feed Feed, proc ItemProcessor, filter Excluder, pacer Pacer, cfg Config, logger *zap.Logger) *Pipeline {
	if pacer == nil {
		pacer = NoPacer{}
	}
	return &Pipeline{
		feed:      feed,
		processor: proc,
		filter:    filter,
		pacer:     pacer,
		cfg:       cfg,
		logger:    logger,
	}
}

// IsFatal reports whether err must end the run rather than just the current item.
func IsFatal(err error) bool {
	return forum.IsAuth(err) || errors.Is(err, processor.ErrDecisionUnavailable)
}

func (p *Pipeline) runLogger(mode string) *zap.Logger {
	return p.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("mode", mode),
		zap.String("subreddit", p.cfg.Subreddit),
	)
}

// Fetch processes the most recent posts once, in the order the forum returns them.
func (p *Pipeline) Fetch(ctx context.Context) (Stats, error) {
	return p.fetch(ctx, p.runLogger("fetch"))
}

func (p *Pipeline) fetch(ctx context.Context, log *zap.Logger) (Stats, error) {
	var stats Stats

	items, err := p.feed.FetchRecent(ctx, p.cfg.Subreddit, p.cfg.FetchLimit)
	if err != nil {
		return stats, fmt.Errorf("fetching recent posts: %w", err)
	}
	log.Info("Fetched posts", zap.Int("count", len(items)))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.handle(ctx, item, &stats, log); err != nil {
			return stats, err
		}
	}

	log.Info("Fetch finished", stats.fields()...)
	return stats, nil
}

// Stream processes new posts as they arrive until ctx is cancelled.
// Cancellation is the normal way to end a stream and returns a nil error.
func (p *Pipeline) Stream(ctx context.Context) (Stats, error) {
	return p.stream(ctx, p.runLogger("stream"))
}

func (p *Pipeline) stream(ctx context.Context, log *zap.Logger) (Stats, error) {
	var stats Stats

	items, errs := p.feed.StreamNew(ctx, p.cfg.Subreddit, p.cfg.Stream)
	log.Info("Streaming new posts", zap.Bool("skip_existing", p.cfg.Stream.SkipExisting))

	for {
		select {
		case <-ctx.Done():
			log.Info("Stream cancelled", stats.fields()...)
			return stats, nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return stats, fmt.Errorf("streaming posts: %w", err)

		case item, ok := <-items:
			if !ok {
				if err, ok := <-errs; ok && err != nil {
					return stats, fmt.Errorf("streaming posts: %w", err)
				}
				log.Info("Stream closed", stats.fields()...)
				return stats, nil
			}
			if ctx.Err() != nil {
				log.Info("Stream cancelled", stats.fields()...)
				return stats, nil
			}
			if err := p.handle(ctx, item, &stats, log); err != nil {
				return stats, err
			}
		}
	}
}

// FetchThenStream runs Fetch to completion and then Stream.
func (p *Pipeline) FetchThenStream(ctx context.Context) (Stats, error) {
	log := p.runLogger("fetch_then_stream")

	stats, err := p.fetch(ctx, log)
	if err != nil {
		return stats, err
	}

	streamed, err := p.stream(ctx, log)
	stats.add(streamed)
	return stats, err
}

// handle processes one item and returns only errors that end the run.
func (p *Pipeline) handle(ctx context.Context, item models.Item, stats *Stats, log *zap.Logger) error {
	stats.Seen++
	itemLog := log.With(zap.String("item_id", item.ID))

	if p.filter != nil {
		if reason := p.filter.Reason(item); reason != moderation.ReasonNone {
			stats.Excluded++
			itemLog.Info("Excluded by moderation filter", zap.String("reason", string(reason)))
			return nil
		}
	}

	// A decision in flight runs to completion; cancellation is honoured between items.
	outcome, err := p.processor.Process(context.WithoutCancel(ctx), item)
	switch outcome {
	case processor.OutcomeAlreadyProcessed:
		stats.AlreadyProcessed++
		return nil
	case processor.OutcomeSkipped:
		stats.Skipped++
	case processor.OutcomeSubmitted:
		stats.Submitted++
	default:
		stats.Failed++
	}

	if err != nil {
		if IsFatal(err) {
			itemLog.Error("Aborting run", zap.Error(err))
			return err
		}
		itemLog.Error("Item not processed", zap.Error(err), zap.Stringer("outcome", outcome))
	}

	itemLog.Info("Going to next post")
	if err := p.pacer.Wait(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
