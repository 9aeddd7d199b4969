// Package processor runs the per-item reply state machine:
//
//	Fetched -> Skipped
//	Fetched -> Replying -> Confirmed -> Submitted
//	Fetched -> Replying -> Declined -> Replying
//
// Skipped and Submitted are terminal and recorded in the dedup store.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/generator"
	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/storage"
	"github.com/xaenox/moon-harvester/internal/textfix"
)

var (
	// ErrGenerationFailed wraps any generation client failure. The item stays unprocessed.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrSubmissionFailed wraps a rejected or failed forum reply. The item stays unprocessed.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrDecisionUnavailable means the decision source can no longer answer (closed input, lost chat).
	ErrDecisionUnavailable = errors.New("decision source unavailable")
)

type Outcome int

const (
	OutcomeAbandoned Outcome = iota
	OutcomeAlreadyProcessed
	OutcomeSkipped
	OutcomeSubmitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSubmitted:
		return "submitted"
	default:
		return "abandoned"
	}
}

type state string

const (
	stateFetched   state = "fetched"
	stateReplying  state = "replying"
	stateConfirmed state = "confirmed"
	stateDeclined  state = "declined"
	stateSkipped   state = "skipped"
	stateSubmitted state = "submitted"
)

// Replier posts a reply to a forum thing.
type Replier interface {
	Reply(ctx context.Context, fullname, text string) error
}

// DecisionSource is the operator, human or automatic.
type DecisionSource interface {
	Decide(ctx context.Context, item models.Item) (models.Decision, error)
	Choose(ctx context.Context, item models.Item, candidates []models.CandidateReply) (models.Choice, error)
	Confirm(ctx context.Context, item models.Item, reply models.CandidateReply) (bool, error)
}

type Config struct {
	SystemPrompt string
	Candidates   int
	Temperature  float64
	MaxTokens    int
}

type Processor struct {
	store     storage.DedupStore
	replier   Replier
	generator generator.Generator
	decisions DecisionSource
	cfg       Config
	logger    *zap.Logger
}

// New builds a Processor. gen may be nil, in which case generate decisions fail with ErrGenerationFailed.
func New(store storage.DedupStore, replier Replier, gen generator.Generator, decisions DecisionSource, cfg Config, logger *zap.Logger) *Processor {
	return &Processor{
		store:     store,
		replier:   replier,
		generator: gen,
		decisions: decisions,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process drives item to a terminal state or abandons it on error.
// Abandoned items are not recorded and stay eligible on the next run.
func (p *Processor) Process(ctx context.Context, item models.Item) (Outcome, error) {
	log := p.logger.With(zap.String("item_id", item.ID))

	done, err := p.store.Has(ctx, item.ID)
	if err != nil {
		return OutcomeAbandoned, fmt.Errorf("checking dedup store: %w", err)
	}
	if done {
		log.Info("Item already processed")
		return OutcomeAlreadyProcessed, nil
	}
	log.Debug("State", zap.String("state", string(stateFetched)))

	for {
		decision, err := p.decisions.Decide(ctx, item)
		if err != nil {
			return OutcomeAbandoned, fmt.Errorf("%w: %w", ErrDecisionUnavailable, err)
		}

		if decision.Kind == models.DecisionSkip {
			return p.skip(ctx, item, log)
		}

		log.Debug("State", zap.String("state", string(stateReplying)), zap.Stringer("decision", decision.Kind))
		reply, err := p.draft(ctx, item, decision, log)
		if err != nil {
			return OutcomeAbandoned, err
		}
		if reply.Text == "" {
			log.Info("Empty reply, returning to decision")
			continue
		}

		ok, err := p.decisions.Confirm(ctx, item, reply)
		if err != nil {
			return OutcomeAbandoned, fmt.Errorf("%w: %w", ErrDecisionUnavailable, err)
		}
		if !ok {
			log.Debug("State", zap.String("state", string(stateDeclined)))
			continue
		}

		log.Debug("State", zap.String("state", string(stateConfirmed)))
		return p.submit(ctx, item, reply, log)
	}
}

func (p *Processor) skip(ctx context.Context, item models.Item, log *zap.Logger) (Outcome, error) {
	if err := p.store.MarkProcessed(ctx, item); err != nil {
		return OutcomeAbandoned, fmt.Errorf("recording skip: %w", err)
	}
	log.Info("Skipped item", zap.String("state", string(stateSkipped)))
	return OutcomeSkipped, nil
}

func (p *Processor) draft(ctx context.Context, item models.Item, decision models.Decision, log *zap.Logger) (models.CandidateReply, error) {
	if decision.Kind == models.DecisionManual {
		return models.CandidateReply{Text: strings.TrimSpace(decision.Text), Source: models.SourceUser}, nil
	}
	return p.generate(ctx, item, log)
}

func (p *Processor) generate(ctx context.Context, item models.Item, log *zap.Logger) (models.CandidateReply, error) {
	if p.generator == nil {
		return models.CandidateReply{}, fmt.Errorf("%w: no generation client configured", ErrGenerationFailed)
	}

	req := p.request(item)
	for {
		texts, err := p.generator.Complete(ctx, req)
		if err != nil {
			log.Error("Failed to generate replies", zap.Error(err), zap.Stringer("kind", generator.KindOf(err)))
			return models.CandidateReply{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		if len(texts) == 0 {
			log.Error("Generator returned no candidates")
			return models.CandidateReply{}, fmt.Errorf("%w: no candidates returned", ErrGenerationFailed)
		}

		candidates := make([]models.CandidateReply, len(texts))
		for i, text := range texts {
			candidates[i] = models.CandidateReply{Text: text, Source: models.SourceGenerated}
		}

		reply, regenerate, err := p.choose(ctx, item, candidates, log)
		if err != nil || !regenerate {
			return reply, err
		}
		log.Debug("Regenerating candidates")
	}
}

// choose asks until the operator picks a valid candidate, types their own reply, or asks to regenerate.
func (p *Processor) choose(ctx context.Context, item models.Item, candidates []models.CandidateReply, log *zap.Logger) (models.CandidateReply, bool, error) {
	for {
		choice, err := p.decisions.Choose(ctx, item, candidates)
		if err != nil {
			return models.CandidateReply{}, false, fmt.Errorf("%w: %w", ErrDecisionUnavailable, err)
		}

		switch choice.Kind {
		case models.ChoiceRegenerate:
			return models.CandidateReply{}, true, nil
		case models.ChoiceManual:
			return models.CandidateReply{Text: strings.TrimSpace(choice.Text), Source: models.SourceUser}, false, nil
		default:
			if choice.Index >= 0 && choice.Index < len(candidates) {
				return candidates[choice.Index], false, nil
			}
			log.Warn("Invalid candidate selection", zap.Int("index", choice.Index), zap.Int("candidates", len(candidates)))
		}
	}
}

func (p *Processor) request(item models.Item) generator.Request {
	return generator.Request{
		Prompt:       BuildPrompt(item),
		SystemPrompt: p.cfg.SystemPrompt,
		N:            p.cfg.Candidates,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	}
}

func (p *Processor) submit(ctx context.Context, item models.Item, reply models.CandidateReply, log *zap.Logger) (Outcome, error) {
	if err := p.replier.Reply(ctx, item.Fullname(), reply.Text); err != nil {
		log.Error("Failed to submit reply", zap.Error(err))
		return OutcomeAbandoned, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	if err := p.store.MarkProcessed(ctx, item); err != nil {
		// The reply is out; a duplicate may follow on the next run.
		return OutcomeSubmitted, fmt.Errorf("recording submitted reply: %w", err)
	}

	log.Info("Comment posted",
		zap.String("state", string(stateSubmitted)),
		zap.String("source", string(reply.Source)),
		zap.String("comment", reply.Text))
	return OutcomeSubmitted, nil
}

// BuildPrompt renders the generation prompt for an item from its normalized title and text.
func BuildPrompt(item models.Item) string {
	return fmt.Sprintf("Post Title: %s\nPost Text: %s", textfix.Normalize(item.Title), textfix.Normalize(item.Text))
}
