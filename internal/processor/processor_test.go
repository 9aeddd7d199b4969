package processor

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/forum"
	"github.com/xaenox/moon-harvester/internal/generator"
	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/storage"
)

type fakeReplier struct {
	calls []string
	err   error
}

func (f *fakeReplier) Reply(ctx context.Context, fullname, text string) error {
	f.calls = append(f.calls, fullname+"|"+text)
	return f.err
}

type fakeGenerator struct {
	batches  [][]string
	err      error
	requests []generator.Request
}

func (f *fakeGenerator) Complete(ctx context.Context, req generator.Request) ([]string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	batch := f.batches[0]
	if len(f.batches) > 1 {
		f.batches = f.batches[1:]
	}
	return batch, nil
}

// scripted answers each question from its queue and fails once a queue runs dry.
type scripted struct {
	decisions []models.Decision
	choices   []models.Choice
	confirms  []bool
	seen      [][]models.CandidateReply
	confirmed []models.CandidateReply
}

func (s *scripted) Decide(ctx context.Context, item models.Item) (models.Decision, error) {
	if len(s.decisions) == 0 {
		return models.Decision{}, io.EOF
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

func (s *scripted) Choose(ctx context.Context, item models.Item, candidates []models.CandidateReply) (models.Choice, error) {
	s.seen = append(s.seen, candidates)
	if len(s.choices) == 0 {
		return models.Choice{}, io.EOF
	}
	c := s.choices[0]
	s.choices = s.choices[1:]
	return c, nil
}

func (s *scripted) Confirm(ctx context.Context, item models.Item, reply models.CandidateReply) (bool, error) {
	s.confirmed = append(s.confirmed, reply)
	if len(s.confirms) == 0 {
		return false, io.EOF
	}
	c := s.confirms[0]
	s.confirms = s.confirms[1:]
	return c, nil
}

var testItem = models.Item{ID: "abc", Kind: models.KindPost, Title: "cafÃ© talk", Text: "B"}

type harness struct {
	store     *storage.MemoryStorage
	replier   *fakeReplier
	gen       *fakeGenerator
	decisions *scripted
	proc      *Processor
}

func newHarness(decisions *scripted) *harness {
	h := &harness{
		store:     storage.NewMemoryStorage(),
		replier:   &fakeReplier{},
		gen:       &fakeGenerator{batches: [][]string{{"gen one", "gen two"}}},
		decisions: decisions,
	}
	h.proc = New(h.store, h.replier, h.gen, decisions, Config{SystemPrompt: "sys", Candidates: 2}, zap.NewNop())
	return h
}

func (h *harness) marked(t *testing.T, id string) bool {
	t.Helper()
	has, err := h.store.Has(context.Background(), id)
	require.NoError(t, err)
	return has
}

func TestProcess_AlreadyProcessed(t *testing.T) {
	h := newHarness(&scripted{})
	require.NoError(t, h.store.MarkProcessed(context.Background(), testItem))

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	assert.Empty(t, h.replier.calls)
	assert.Empty(t, h.gen.requests)
}

func TestProcess_Skip(t *testing.T) {
	h := newHarness(&scripted{decisions: []models.Decision{models.Skip()}})

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, h.replier.calls)
	assert.True(t, h.marked(t, "abc"))
}

func TestProcess_ManualConfirmed(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Manual("  to the moon  ")},
		confirms:  []bool{true},
	})

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	assert.Equal(t, []string{"t3_abc|to the moon"}, h.replier.calls)
	assert.Equal(t, models.SourceUser, h.decisions.confirmed[0].Source)
	assert.True(t, h.marked(t, "abc"))
}

func TestProcess_DeclineReturnsToDecision(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Manual("first draft"), models.Manual("second draft")},
		confirms:  []bool{false, true},
	})

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	assert.Equal(t, []string{"t3_abc|second draft"}, h.replier.calls)
}

func TestProcess_DeclineThenSkip(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Manual("draft"), models.Skip()},
		confirms:  []bool{false},
	})

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, h.replier.calls)
}

func TestProcess_EmptyManualAsksAgain(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Manual("   "), models.Skip()},
	})

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, h.decisions.confirmed)
}

func TestProcess_GenerateSelectAndRegenerate(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Generate()},
		choices: []models.Choice{
			{Kind: models.ChoiceRegenerate},
			{Kind: models.ChoiceSelect, Index: 7},
			{Kind: models.ChoiceSelect, Index: 1},
		},
		confirms: []bool{true},
	})
	h.gen.batches = [][]string{{"a1", "a2"}, {"b1", "b2"}}

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	assert.Equal(t, []string{"t3_abc|b2"}, h.replier.calls)
	assert.Len(t, h.gen.requests, 2)
	require.Len(t, h.decisions.seen, 3, "invalid index asks again over the same candidates")
	assert.Equal(t, h.decisions.seen[1], h.decisions.seen[2])

	req := h.gen.requests[0]
	assert.Equal(t, "Post Title: café talk\nPost Text: B", req.Prompt)
	assert.Equal(t, "sys", req.SystemPrompt)
	assert.Equal(t, 2, req.N)
}

func TestProcess_GenerateThenManual(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Generate()},
		choices:   []models.Choice{{Kind: models.ChoiceManual, Text: "my own words"}},
		confirms:  []bool{true},
	})

	outcome, err := h.proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	assert.Equal(t, []string{"t3_abc|my own words"}, h.replier.calls)
}

func TestProcess_GenerationFailed(t *testing.T) {
	h := newHarness(&scripted{decisions: []models.Decision{models.Generate()}})
	h.gen.err = &generator.Error{Kind: generator.KindRateLimited, StatusCode: 429, Err: errors.New("slow down")}

	outcome, err := h.proc.Process(context.Background(), testItem)
	assert.Equal(t, OutcomeAbandoned, outcome)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, generator.KindRateLimited, generator.KindOf(err))
	assert.False(t, h.marked(t, "abc"))
	assert.Empty(t, h.replier.calls)
}

func TestProcess_EmptyGeneration(t *testing.T) {
	h := newHarness(&scripted{decisions: []models.Decision{models.Generate()}})
	h.gen.batches = [][]string{{}}

	outcome, err := h.proc.Process(context.Background(), testItem)
	assert.Equal(t, OutcomeAbandoned, outcome)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Len(t, h.gen.requests, 1)
	assert.Empty(t, h.decisions.seen, "an empty batch is never offered for selection")
	assert.False(t, h.marked(t, "abc"))
	assert.Empty(t, h.replier.calls)
}

func TestProcess_EmptyGenerationAuto(t *testing.T) {
	gen := &fakeGenerator{batches: [][]string{{}}}
	store := storage.NewMemoryStorage()
	proc := New(store, &fakeReplier{}, gen, AutoDecider{}, Config{Candidates: 1}, zap.NewNop())

	outcome, err := proc.Process(context.Background(), testItem)
	assert.Equal(t, OutcomeAbandoned, outcome)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Len(t, gen.requests, 1)
}

func TestProcess_NoGenerator(t *testing.T) {
	decisions := &scripted{decisions: []models.Decision{models.Generate()}}
	proc := New(storage.NewMemoryStorage(), &fakeReplier{}, nil, decisions, Config{}, zap.NewNop())

	_, err := proc.Process(context.Background(), testItem)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestProcess_SubmissionFailed(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Manual("hello")},
		confirms:  []bool{true},
	})
	h.replier.err = &forum.Error{Kind: forum.KindRejected, Op: "reply", StatusCode: 400}

	outcome, err := h.proc.Process(context.Background(), testItem)
	assert.Equal(t, OutcomeAbandoned, outcome)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, forum.KindRejected, forum.KindOf(err))
	assert.False(t, h.marked(t, "abc"), "failed submissions stay eligible for retry")
}

func TestProcess_SubmissionAuthIsVisible(t *testing.T) {
	h := newHarness(&scripted{
		decisions: []models.Decision{models.Manual("hello")},
		confirms:  []bool{true},
	})
	h.replier.err = &forum.Error{Kind: forum.KindAuth, Op: "reply", StatusCode: 401}

	_, err := h.proc.Process(context.Background(), testItem)
	assert.True(t, forum.IsAuth(err))
}

func TestProcess_DecisionSourceGone(t *testing.T) {
	h := newHarness(&scripted{})

	outcome, err := h.proc.Process(context.Background(), testItem)
	assert.Equal(t, OutcomeAbandoned, outcome)
	assert.ErrorIs(t, err, ErrDecisionUnavailable)
	assert.ErrorIs(t, err, io.EOF)
}

func TestAutoDecider(t *testing.T) {
	store := storage.NewMemoryStorage()
	replier := &fakeReplier{}
	gen := &fakeGenerator{batches: [][]string{{"auto reply", "other"}}}
	proc := New(store, replier, gen, AutoDecider{}, Config{Candidates: 2}, zap.NewNop())

	outcome, err := proc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	assert.Equal(t, []string{"t3_abc|auto reply"}, replier.calls)
}

func TestBuildPrompt(t *testing.T) {
	item := models.Item{Title: "itâ€™s up", Text: "naÃ¯ve"}
	assert.Equal(t, "Post Title: it’s up\nPost Text: naïve", BuildPrompt(item))
}
