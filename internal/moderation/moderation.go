package moderation

import (
	"strings"

	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/textfix"
)

type Reason string

const (
	ReasonNone       Reason = ""
	ReasonModerator  Reason = "moderator_author"
	ReasonAutomation Reason = "automation_keyword"
	ReasonTombstone  Reason = "tombstone"
	ReasonStub       Reason = "more_stub"
)

type Config struct {
	ModeratorHandles   []string `mapstructure:"moderator_handles"`
	AutomationKeywords []string `mapstructure:"automation_keywords"`
	Tombstones         []string `mapstructure:"tombstones"`
}

func DefaultConfig() Config {
	return Config{
		ModeratorHandles:   []string{"automoderator", "mod", "bot"},
		AutomationKeywords: []string{"i am a bot", "this action was performed automatically"},
		Tombstones:         []string{"[deleted]", "[removed]"},
	}
}

// Filter decides whether a comment is automated, removed or deleted.
// It holds no mutable state and is safe for concurrent use.
type Filter struct {
	handles    map[string]struct{}
	keywords   []string
	tombstones map[string]struct{}
}

func NewFilter(cfg Config) *Filter {
	f := &Filter{
		handles:    make(map[string]struct{}, len(cfg.ModeratorHandles)),
		tombstones: make(map[string]struct{}, len(cfg.Tombstones)),
	}
	for _, h := range cfg.ModeratorHandles {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			f.handles[h] = struct{}{}
		}
	}
	for _, k := range cfg.AutomationKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	for _, t := range cfg.Tombstones {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			f.tombstones[t] = struct{}{}
		}
	}
	return f
}

func (f *Filter) IsExcluded(item models.Item) bool {
	return f.Reason(item) != ReasonNone
}

// Reason reports the first rule that excludes item, or ReasonNone.
func (f *Filter) Reason(item models.Item) Reason {
	if item.Kind == models.KindMore {
		return ReasonStub
	}

	if _, ok := f.tombstones[strings.ToLower(strings.TrimSpace(item.Text))]; ok {
		return ReasonTombstone
	}

	if _, ok := f.handles[strings.ToLower(item.Author)]; ok && item.Author != "" {
		return ReasonModerator
	}

	text := strings.ToLower(textfix.Normalize(item.Text))
	for _, keyword := range f.keywords {
		if strings.Contains(text, keyword) {
			return ReasonAutomation
		}
	}

	return ReasonNone
}
