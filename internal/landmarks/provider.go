package landmarks

import (
	"context"
	"sync"
)

// Provider runs the face landmark model on an encoded image. It returns one Set
// per detected face, dominant face first, or an empty slice when no face is found.
type Provider interface {
	Detect(ctx context.Context, image []byte, width, height int) ([]Set, error)
}

// Serialized wraps p so that at most one Detect call runs at a time. Use it for
// detectors that hold per-call state.
func Serialized(p Provider) Provider {
	return &serializedProvider{next: p}
}

type serializedProvider struct {
	mu   sync.Mutex
	next Provider
}

func (s *serializedProvider) Detect(ctx context.Context, image []byte, width, height int) ([]Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.next.Detect(ctx, image, width, height)
}
