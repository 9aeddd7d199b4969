// Package bot lets an operator take reply decisions from a Telegram chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/textfix"
)

// ErrChatClosed is returned once the update feed has stopped.
var ErrChatClosed = errors.New("telegram updates closed")

// Sender is the part of *tgbotapi.BotAPI the operator needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Operator is a processor decision source bound to a single chat.
type Operator struct {
	api     Sender
	chatID  int64
	updates <-chan tgbotapi.Update
	stop    func()
	logger  *zap.Logger
}

func New(token string, chatID int64, logger *zap.Logger) (*Operator, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	op := NewOperator(api, chatID, api.GetUpdatesChan(u), logger)
	op.stop = api.StopReceivingUpdates
	logger.Info("Telegram operator ready", zap.String("bot", api.Self.UserName), zap.Int64("chat_id", chatID))
	return op, nil
}

func NewOperator(api Sender, chatID int64, updates <-chan tgbotapi.Update, logger *zap.Logger) *Operator {
	return &Operator{
		api:     api,
		chatID:  chatID,
		updates: updates,
		logger:  logger,
	}
}

func (o *Operator) Close() {
	if o.stop != nil {
		o.stop()
	}
}

// next waits for the next message from the bound chat.
func (o *Operator) next(ctx context.Context) (*tgbotapi.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case update, ok := <-o.updates:
			if !ok {
				return nil, ErrChatClosed
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			if update.Message.Chat.ID != o.chatID {
				o.logger.Debug("Ignoring message from unbound chat", zap.Int64("chat_id", update.Message.Chat.ID))
				continue
			}
			if update.Message.IsCommand() && update.Message.Command() == "help" {
				o.handleHelp()
				continue
			}
			return update.Message, nil
		}
	}
}

func (o *Operator) Decide(ctx context.Context, item models.Item) (models.Decision, error) {
	o.sendMarkdown(formatItem(item))

	for {
		msg, err := o.next(ctx)
		if err != nil {
			return models.Decision{}, err
		}

		if !msg.IsCommand() {
			return models.Manual(msg.Text), nil
		}
		switch msg.Command() {
		case "skip":
			o.sendMessage("Skipping this post")
			return models.Skip(), nil
		case "generate":
			o.sendMessage("Generating replies...")
			return models.Generate(), nil
		default:
			o.sendMessage("Send a reply, /skip or /generate.")
		}
	}
}

func (o *Operator) Choose(ctx context.Context, item models.Item, candidates []models.CandidateReply) (models.Choice, error) {
	var b strings.Builder
	b.WriteString("*Suggested replies:*\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdown(c.Text))
	}
	b.WriteString(escapeMarkdown("\nSend a number, /regen for new ones or /manual to write your own."))
	o.sendMarkdown(b.String())

	msg, err := o.next(ctx)
	if err != nil {
		return models.Choice{}, err
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "regen":
			return models.Choice{Kind: models.ChoiceRegenerate}, nil
		case "manual":
			o.sendMessage("Send your reply.")
			reply, err := o.next(ctx)
			if err != nil {
				return models.Choice{}, err
			}
			return models.Choice{Kind: models.ChoiceManual, Text: reply.Text}, nil
		}
		return models.Choice{Kind: models.ChoiceSelect, Index: -1}, nil
	}

	if n, err := strconv.Atoi(strings.TrimSpace(msg.Text)); err == nil {
		return models.Choice{Kind: models.ChoiceSelect, Index: n - 1}, nil
	}
	return models.Choice{Kind: models.ChoiceManual, Text: msg.Text}, nil
}

func (o *Operator) Confirm(ctx context.Context, item models.Item, reply models.CandidateReply) (bool, error) {
	o.sendMarkdown(fmt.Sprintf("*Post this reply?*\n\n_%s_\n\n%s", escapeMarkdown(reply.Text), escapeMarkdown("/yes or /no")))

	msg, err := o.next(ctx)
	if err != nil {
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(msg.Text))
	if msg.IsCommand() {
		answer = msg.Command()
	}
	switch answer {
	case "yes", "y":
		return true, nil
	}
	return false, nil
}

func (o *Operator) handleHelp() {
	help := `Commands:
/skip - Skip this post
/generate - Suggest replies
/regen - Suggest different replies
/manual - Write your own reply
/yes, /no - Confirm or discard a reply

Any other text is used as your reply.`

	o.sendMessage(help)
}

func formatItem(item models.Item) string {
	text := fmt.Sprintf("*New submission*\n\n*%s*\n", escapeMarkdown(textfix.Normalize(item.Title)))
	if body := textfix.Normalize(item.Text); body != "" {
		text += escapeMarkdown(body) + "\n"
	}
	text += escapeMarkdown(fmt.Sprintf("\nKarma: %d | ID: %s", item.Score, item.ID))
	if item.Permalink != "" {
		text += "\n" + escapeMarkdown(item.Permalink)
	}
	return text
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (o *Operator) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(o.chatID, text)
	msg.ParseMode = "MarkdownV2"
	if _, err := o.api.Send(msg); err != nil {
		o.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", o.chatID))
	}
}

func (o *Operator) sendMessage(text string) {
	msg := tgbotapi.NewMessage(o.chatID, text)
	if _, err := o.api.Send(msg); err != nil {
		o.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", o.chatID))
	}
}
