// Package forum describes the discussion-forum collaborator and its failure
// modes, and implements it for Reddit.
package forum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/moon-harvester/internal/models"
)

type Client interface {
	// FetchRecent returns up to limit newest posts, newest first.
	FetchRecent(ctx context.Context, subreddit string, limit int) ([]models.Item, error)
	// FetchTop returns up to limit top posts for timeframe (hour, day, week, month, year, all).
	FetchTop(ctx context.Context, subreddit string, limit int, timeframe string) ([]models.Item, error)
	// StreamNew delivers new posts in arrival order until ctx is done or an
	// unrecoverable error is sent on the error channel. Both channels are closed on exit.
	StreamNew(ctx context.Context, subreddit string, opts StreamOptions) (<-chan models.Item, <-chan error)
	// Reply posts text as a reply to the thing named fullname.
	Reply(ctx context.Context, fullname, text string) error
	// ListComments returns up to limit top-level comments of a post, including "more" stubs.
	ListComments(ctx context.Context, postID string, limit int) ([]models.Item, error)
}

type StreamOptions struct {
	// SkipExisting drops posts that existed before the stream started.
	SkipExisting bool
	PollInterval time.Duration
}

type ErrorKind int

const (
	KindRateLimited ErrorKind = iota + 1
	KindAuth
	KindNetwork
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by Client implementations.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("forum %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the forum error kind carried by err, or 0.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsAuth reports whether err needs operator intervention; runs abort on it.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsTransient reports whether retrying later may succeed.
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == KindRateLimited || k == KindNetwork
}
