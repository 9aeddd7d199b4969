package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xaenox/moon-harvester/internal/moderation"
)

type Config struct {
	Reddit     RedditConfig      `mapstructure:"reddit"`
	OpenAI     OpenAIConfig      `mapstructure:"openai"`
	Telegram   TelegramConfig    `mapstructure:"telegram"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Harvester  HarvesterConfig   `mapstructure:"harvester"`
	Dataset    DatasetConfig     `mapstructure:"dataset"`
	Moderation moderation.Config `mapstructure:"moderation"`
	Log        LogConfig         `mapstructure:"log"`
}

type RedditConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	UserAgent    string        `mapstructure:"user_agent"`
	APIURL       string        `mapstructure:"api_url"`
	AuthURL      string        `mapstructure:"auth_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	Candidates   int     `mapstructure:"candidates"`
	SystemPrompt string  `mapstructure:"system_prompt"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type HarvesterConfig struct {
	Subreddit       string        `mapstructure:"subreddit"`
	FetchLimit      int           `mapstructure:"fetch_limit"`
	SkipExisting    bool          `mapstructure:"skip_existing"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PaceMin         time.Duration `mapstructure:"pace_min"`
	PaceMax         time.Duration `mapstructure:"pace_max"`
	Operator        string        `mapstructure:"operator"`
	SkipCommand     string        `mapstructure:"skip_command"`
	GenerateCommand string        `mapstructure:"generate_command"`
	Schedule        string        `mapstructure:"schedule"`
}

type DatasetConfig struct {
	Subreddit       string `mapstructure:"subreddit"`
	Limit           int    `mapstructure:"limit"`
	Timeframe       string `mapstructure:"timeframe"`
	CommentsPerPost int    `mapstructure:"comments_per_post"`
	SystemPrompt    string `mapstructure:"system_prompt"`
	SystemPolicy    string `mapstructure:"system_policy"`
	Output          string `mapstructure:"output"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// envBindings keeps the environment variable names the harvester has always read.
var envBindings = map[string]string{
	"reddit.client_id":     "REDDIT_CLIENT_ID",
	"reddit.client_secret": "REDDIT_CLIENT_SECRET",
	"reddit.username":      "REDDIT_USERNAME",
	"reddit.password":      "REDDIT_PASSWORD",
	"reddit.user_agent":    "REDDIT_USER_AGENT",
	"openai.api_key":       "OPENAI_API_KEY",
	"openai.base_url":      "OPENAI_BASE_URL",
	"telegram.token":       "TELEGRAM_TOKEN",
	"telegram.chat_id":     "TELEGRAM_CHAT_ID",
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	switch u.Scheme {
	case "sqlite", "sqlite3", "file":
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		return DatabaseConfig{Driver: "sqlite", Path: path}, nil
	case "postgres", "postgresql":
	default:
		return DatabaseConfig{}, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reddit.user_agent", "moon-harvester/1.0")
	v.SetDefault("reddit.api_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.auth_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.timeout", 30*time.Second)

	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.candidates", 3)
	v.SetDefault("openai.system_prompt", "You are a friendly member of a cryptocurrency forum. Reply briefly and naturally.")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "reddit_posts.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("harvester.subreddit", "cryptocurrency")
	v.SetDefault("harvester.fetch_limit", 10)
	v.SetDefault("harvester.skip_existing", true)
	v.SetDefault("harvester.poll_interval", 5*time.Second)
	v.SetDefault("harvester.pace_min", 2*time.Second)
	v.SetDefault("harvester.pace_max", 10*time.Second)
	v.SetDefault("harvester.operator", "console")
	v.SetDefault("harvester.skip_command", "SKIP")
	v.SetDefault("harvester.generate_command", "GENERATE")
	v.SetDefault("harvester.schedule", "@every 30m")

	v.SetDefault("dataset.subreddit", "cryptocurrency")
	v.SetDefault("dataset.limit", 20)
	v.SetDefault("dataset.timeframe", "all")
	v.SetDefault("dataset.comments_per_post", 2)
	v.SetDefault("dataset.system_policy", "every")
	v.SetDefault("dataset.output", "reddit_data.jsonl")

	mod := moderation.DefaultConfig()
	v.SetDefault("moderation.moderator_handles", mod.ModeratorHandles)
	v.SetDefault("moderation.automation_keywords", mod.AutomationKeywords)
	v.SetDefault("moderation.tombstones", mod.Tombstones)

	v.SetDefault("log.file", "reddit_bot.log")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads path (if present), then .env and the environment.
// Environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// A missing config file is fine; defaults and the environment still apply.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	return &config, nil
}
