package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
)

const chatID = 42

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last() tgbotapi.MessageConfig {
	return f.sent[len(f.sent)-1]
}

func text(chat int64, s string) tgbotapi.Update {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}, Text: s}
	if len(s) > 0 && s[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(s)}}
	}
	return tgbotapi.Update{Message: msg}
}

func operator(updates ...tgbotapi.Update) (*Operator, *fakeSender) {
	ch := make(chan tgbotapi.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	sender := &fakeSender{}
	return NewOperator(sender, chatID, ch, zap.NewNop()), sender
}

var item = models.Item{ID: "abc", Title: "Moon (soon)!", Text: "buy_now", Score: 7}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		updates []tgbotapi.Update
		want    models.Decision
	}{
		{"skip", []tgbotapi.Update{text(chatID, "/skip")}, models.Skip()},
		{"generate", []tgbotapi.Update{text(chatID, "/generate")}, models.Generate()},
		{"manual text", []tgbotapi.Update{text(chatID, "hodl")}, models.Manual("hodl")},
		{"other chats are ignored", []tgbotapi.Update{text(7, "/skip"), text(chatID, "mine")}, models.Manual("mine")},
		{"unknown command asks again", []tgbotapi.Update{text(chatID, "/dance"), text(chatID, "/skip")}, models.Skip()},
		{"help is answered in place", []tgbotapi.Update{text(chatID, "/help"), {}, text(chatID, "/generate")}, models.Generate()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, sender := operator(tt.updates...)
			got, err := op.Decide(context.Background(), item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			first := sender.sent[0]
			assert.Equal(t, int64(chatID), first.ChatID)
			assert.Equal(t, "MarkdownV2", first.ParseMode)
			assert.Contains(t, first.Text, `Moon \(soon\)\!`)
			assert.Contains(t, first.Text, `buy\_now`)
		})
	}
}

func TestDecide_ClosedUpdates(t *testing.T) {
	op, _ := operator()
	_, err := op.Decide(context.Background(), item)
	assert.ErrorIs(t, err, ErrChatClosed)
}

func TestDecide_Cancelled(t *testing.T) {
	sender := &fakeSender{}
	op := NewOperator(sender, chatID, make(chan tgbotapi.Update), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := op.Decide(ctx, item)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChoose(t *testing.T) {
	candidates := []models.CandidateReply{{Text: "one."}, {Text: "two"}}

	tests := []struct {
		name    string
		updates []tgbotapi.Update
		want    models.Choice
	}{
		{"number", []tgbotapi.Update{text(chatID, " 2 ")}, models.Choice{Kind: models.ChoiceSelect, Index: 1}},
		{"regen", []tgbotapi.Update{text(chatID, "/regen")}, models.Choice{Kind: models.ChoiceRegenerate}},
		{"manual", []tgbotapi.Update{text(chatID, "/manual"), text(chatID, "my words")}, models.Choice{Kind: models.ChoiceManual, Text: "my words"}},
		{"free text", []tgbotapi.Update{text(chatID, "my words")}, models.Choice{Kind: models.ChoiceManual, Text: "my words"}},
		{"unknown command", []tgbotapi.Update{text(chatID, "/what")}, models.Choice{Kind: models.ChoiceSelect, Index: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, sender := operator(tt.updates...)
			got, err := op.Choose(context.Background(), item, candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, sender.sent[0].Text, `1\. one\.`)
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/yes", true},
		{"Y", true},
		{"/no", false},
		{"maybe", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			op, sender := operator(text(chatID, tt.input))
			got, err := op.Confirm(context.Background(), item, models.CandidateReply{Text: "to the moon"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, sender.last().Text, "_to the moon_")
		})
	}
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\\d\.`, escapeMarkdown(`a_b*c\d.`))
}
