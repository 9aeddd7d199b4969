package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const maxCandidates = 3

type GPTGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewGPTGenerator talks to OpenAI, or to any compatible endpoint when baseURL is set.
func NewGPTGenerator(apiKey, baseURL, model string, logger *zap.Logger) *GPTGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &GPTGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

// Complete returns between 1 and 3 non-empty candidates, or an *Error.
func (g *GPTGenerator) Complete(ctx context.Context, req Request) ([]string, error) {
	n := req.N
	if n < 1 {
		n = 1
	}
	if n > maxCandidates {
		n = maxCandidates
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       g.model,
			Messages:    messages,
			N:           n,
			MaxTokens:   req.MaxTokens,
			Temperature: float32(req.Temperature),
		},
	)
	if err != nil {
		g.logger.Error("Failed to get GPT response", zap.Error(err), zap.String("model", g.model))
		return nil, classify(err)
	}

	candidates := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			candidates = append(candidates, text)
		}
		if len(candidates) == maxCandidates {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, &Error{Kind: KindProvider, Err: errors.New("no non-empty choices in response")}
	}
	return candidates, nil
}

func classify(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return &Error{Kind: KindConnection, Err: err}
	}

	kind := KindProvider
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == 0:
		kind = KindConnection
	}
	return &Error{Kind: kind, StatusCode: status, Err: err}
}
