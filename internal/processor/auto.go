package processor

import (
	"context"

	"github.com/xaenox/moon-harvester/internal/models"
)

// AutoDecider replies to every item with the first generated candidate.
type AutoDecider struct{}

func (AutoDecider) Decide(ctx context.Context, item models.Item) (models.Decision, error) {
	return models.Generate(), nil
}

func (AutoDecider) Choose(ctx context.Context, item models.Item, candidates []models.CandidateReply) (models.Choice, error) {
	return models.Choice{Kind: models.ChoiceSelect, Index: 0}, nil
}

func (AutoDecider) Confirm(ctx context.Context, item models.Item, reply models.CandidateReply) (bool, error) {
	return true, nil
}
