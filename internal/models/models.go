package models

import "time"

type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
	// KindMore marks a placeholder for an elided comment subtree.
	KindMore ItemKind = "more"
)

// Item represents a post or comment fetched from the forum.
// An empty Author means the forum reported no author.
type Item struct {
	ID        string    `json:"id"`
	Kind      ItemKind  `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	Permalink string    `json:"permalink,omitempty"`
}

// Fullname returns the forum thing name used when replying to the item.
func (i Item) Fullname() string {
	switch i.Kind {
	case KindComment:
		return "t1_" + i.ID
	case KindMore:
		return "more_" + i.ID
	default:
		return "t3_" + i.ID
	}
}

// ProcessedRecord is the durable marker that an item must not be replied to again.
type ProcessedRecord struct {
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProcessedRecord snapshots the item fields kept by the dedup store.
func NewProcessedRecord(item Item) ProcessedRecord {
	return ProcessedRecord{
		ItemID:    item.ID,
		Title:     item.Title,
		Text:      item.Text,
		CreatedAt: item.CreatedAt,
	}
}

type ReplySource string

const (
	SourceUser      ReplySource = "user"
	SourceGenerated ReplySource = "generated"
)

// CandidateReply lives only for the duration of one processing decision.
type CandidateReply struct {
	Text   string      `json:"text"`
	Source ReplySource `json:"source"`
}
