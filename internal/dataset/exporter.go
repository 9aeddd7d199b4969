// Package dataset turns forum threads into conversational training records
// and checks files of such records for format errors.
package dataset

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/forum"
	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/textfix"
)

// Policy decides which records carry the system message.
type Policy int

const (
	SystemEvery Policy = iota
	SystemFirst
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "every":
		return SystemEvery, nil
	case "first":
		return SystemFirst, nil
	}
	return SystemEvery, fmt.Errorf("unknown system message policy %q", s)
}

type CommentLister interface {
	ListComments(ctx context.Context, postID string, limit int) ([]models.Item, error)
}

type TopFetcher interface {
	FetchTop(ctx context.Context, subreddit string, limit int, timeframe string) ([]models.Item, error)
}

type Excluder interface {
	IsExcluded(item models.Item) bool
}

type Exporter struct {
	lister CommentLister
	filter Excluder
	policy Policy
	logger *zap.Logger
}

func NewExporter(lister CommentLister, filter Excluder, policy Policy, logger *zap.Logger) *Exporter {
	return &Exporter{
		lister: lister,
		filter: filter,
		policy: policy,
		logger: logger,
	}
}

// BuildRecords emits one record per surviving comment, pairing the post with
// that comment as the assistant turn. Posts left without comments produce nothing.
func (e *Exporter) BuildRecords(ctx context.Context, posts []models.Item, commentsPerPost int, systemPrompt string) ([]models.ConversationRecord, error) {
	var records []models.ConversationRecord

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		comments, err := e.lister.ListComments(ctx, post.ID, commentsPerPost)
		if err != nil {
			if forum.IsAuth(err) {
				return records, fmt.Errorf("listing comments of %s: %w", post.ID, err)
			}
			e.logger.Warn("Skipping post, comments unavailable", zap.String("post_id", post.ID), zap.Error(err))
			continue
		}

		prompt := userContent(post)
		kept := 0
		for _, comment := range comments {
			if e.filter != nil && e.filter.IsExcluded(comment) {
				continue
			}
			reply := strings.TrimSpace(textfix.Normalize(comment.Text))
			if reply == "" {
				continue
			}

			withSystem := systemPrompt != "" && (e.policy == SystemEvery || len(records) == 0)
			record := newRecord(systemPrompt, withSystem, prompt, reply)
			if err := record.Validate(); err != nil {
				e.logger.Warn("Dropping invalid record", zap.String("post_id", post.ID), zap.Error(err))
				continue
			}
			records = append(records, record)
			kept++
		}

		if kept == 0 {
			e.logger.Debug("No usable comments", zap.String("post_id", post.ID))
		}
	}

	return records, nil
}

// ExportOptions selects the posts fetched by Export.
type ExportOptions struct {
	Subreddit       string
	Limit           int
	Timeframe       string
	CommentsPerPost int
	SystemPrompt    string
}

// Export fetches top posts, builds their records and writes them as JSONL.
// It returns the number of records written.
func (e *Exporter) Export(ctx context.Context, source TopFetcher, opts ExportOptions, w io.Writer) (int, error) {
	posts, err := source.FetchTop(ctx, opts.Subreddit, opts.Limit, opts.Timeframe)
	if err != nil {
		return 0, fmt.Errorf("fetching top posts: %w", err)
	}
	e.logger.Info("Fetched top posts",
		zap.String("subreddit", opts.Subreddit),
		zap.String("timeframe", opts.Timeframe),
		zap.Int("count", len(posts)))

	records, err := e.BuildRecords(ctx, posts, opts.CommentsPerPost, opts.SystemPrompt)
	if err != nil {
		return 0, err
	}

	if err := WriteJSONL(w, records); err != nil {
		return 0, err
	}
	e.logger.Info("Dataset written", zap.Int("records", len(records)))
	return len(records), nil
}

func userContent(post models.Item) string {
	title := strings.TrimSpace(textfix.Normalize(post.Title))
	text := strings.TrimSpace(textfix.Normalize(post.Text))
	if text == "" {
		return title
	}
	return title + ": " + text
}

func newRecord(systemPrompt string, withSystem bool, prompt, reply string) models.ConversationRecord {
	messages := make([]models.Message, 0, 3)
	if withSystem {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages,
		models.Message{Role: models.RoleUser, Content: prompt},
		models.Message{Role: models.RoleAssistant, Content: reply},
	)
	return models.ConversationRecord{Messages: messages}
}
