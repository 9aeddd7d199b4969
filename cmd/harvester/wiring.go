package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/xaenox/moon-harvester/internal/bot"
	"github.com/xaenox/moon-harvester/internal/console"
	"github.com/xaenox/moon-harvester/internal/forum"
	"github.com/xaenox/moon-harvester/internal/generator"
	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/moderation"
	"github.com/xaenox/moon-harvester/internal/pipeline"
	"github.com/xaenox/moon-harvester/internal/processor"
	"github.com/xaenox/moon-harvester/internal/storage"
)

// app holds the collaborators of one process. Open it once, close it on exit.
type app struct {
	store    storage.DedupStore
	reddit   *forum.Reddit
	filter   *moderation.Filter
	terminal *console.Terminal
	closers  []func()
}

func newReddit() *forum.Reddit {
	return forum.NewReddit(forum.RedditConfig{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
		APIURL:       cfg.Reddit.APIURL,
		AuthURL:      cfg.Reddit.AuthURL,
		Timeout:      cfg.Reddit.Timeout,
	}, logger.Named("reddit"))
}

func openStore() storage.DedupStore {
	store, err := storage.Open(storage.DatabaseConfig{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, logger.Named("storage"))
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	return store
}

func moderationFilter() *moderation.Filter {
	return moderation.NewFilter(cfg.Moderation)
}

func newApp(in io.Reader, out io.Writer) *app {
	a := &app{
		store:    openStore(),
		reddit:   newReddit(),
		filter:   moderationFilter(),
		terminal: console.NewTerminal(in, out, commands()),
	}
	a.closers = append(a.closers, func() {
		if err := a.store.Close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	})
	return a
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func commands() models.Commands {
	c := models.DefaultCommands()
	if cfg.Harvester.SkipCommand != "" {
		c.Skip = cfg.Harvester.SkipCommand
	}
	if cfg.Harvester.GenerateCommand != "" {
		c.Generate = cfg.Harvester.GenerateCommand
	}
	return c
}

// newGenerator returns nil without an API key; generate requests then fail per item.
func newGenerator() generator.Generator {
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, reply generation disabled")
		return nil
	}
	return generator.NewGPTGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, logger.Named("generator"))
}

func (a *app) decisionSource() (processor.DecisionSource, error) {
	switch cfg.Harvester.Operator {
	case "", "console":
		return a.terminal, nil
	case "telegram":
		if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
			return nil, fmt.Errorf("telegram operator needs TELEGRAM_TOKEN and TELEGRAM_CHAT_ID")
		}
		op, err := bot.New(cfg.Telegram.Token, cfg.Telegram.ChatID, logger.Named("telegram"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, op.Close)
		return op, nil
	case "auto":
		return processor.AutoDecider{}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", cfg.Harvester.Operator)
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	decisions, err := a.decisionSource()
	if err != nil {
		return nil, err
	}

	gen := newGenerator()
	if gen == nil && cfg.Harvester.Operator == "auto" {
		return nil, fmt.Errorf("auto operator needs OPENAI_API_KEY")
	}

	proc := processor.New(a.store, a.reddit, gen, decisions, processor.Config{
		SystemPrompt: cfg.OpenAI.SystemPrompt,
		Candidates:   cfg.OpenAI.Candidates,
		Temperature:  cfg.OpenAI.Temperature,
		MaxTokens:    cfg.OpenAI.MaxTokens,
	}, logger.Named("processor"))

	pacer := pipeline.NewRandomPacer(cfg.Harvester.PaceMin, cfg.Harvester.PaceMax)

	return pipeline.New(a.reddit, proc, a.filter, pacer, pipeline.Config{
		Subreddit:  cfg.Harvester.Subreddit,
		FetchLimit: cfg.Harvester.FetchLimit,
		Stream: forum.StreamOptions{
			SkipExisting: cfg.Harvester.SkipExisting,
			PollInterval: cfg.Harvester.PollInterval,
		},
	}, logger.Named("pipeline")), nil
}

func stdApp() *app {
	return newApp(os.Stdin, os.Stdout)
}
