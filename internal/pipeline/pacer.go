package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces out items handed to the operator. It is advisory only.
type Pacer interface {
	Wait(ctx context.Context) error
}

type NoPacer struct{}

func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }

// RandomPacer waits a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomPacer(lo, hi time.Duration) *RandomPacer {
	if hi < lo {
		lo, hi = hi, lo
	}
	return &RandomPacer{
		Min: lo,
		Max: hi,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *RandomPacer) next() time.Duration {
	span := int64(p.Max - p.Min)
	if span <= 0 {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rnd.Int63n(span+1))
}

func (p *RandomPacer) Wait(ctx context.Context) error {
	d := p.next()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
