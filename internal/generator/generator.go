package generator

import (
	"context"
	"errors"
	"fmt"
)

// Request describes one completion call. N is the number of candidates wanted.
type Request struct {
	Prompt       string
	SystemPrompt string
	N            int
	Temperature  float64
	MaxTokens    int
}

// Generator drafts candidate reply texts.
type Generator interface {
	Complete(ctx context.Context, req Request) ([]string, error)
}

type ErrorKind int

const (
	KindRateLimited ErrorKind = iota + 1
	KindAuth
	KindConnection
	KindProvider
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindConnection:
		return "connection"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}
