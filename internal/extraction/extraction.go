package extraction

import (
	"context"
	"path/filepath"

	"payadvice/internal"
	"payadvice/internal/retry"
)

// Extractor turns one local document into a producer-defined nested mapping.
type Extractor interface {
	Extract(ctx context.Context, path string) (internal.RawExtraction, error)
}

// Preparer is implemented by extractors that must resolve remote state
// (an agent, a model) before the first document.
type Preparer interface {
	Prepare(ctx context.Context) error
}

func Prepare(ctx context.Context, e Extractor) error {
	if p, ok := e.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

type Retrying struct {
	next   Extractor
	policy retry.Policy
}

func WithRetry(e Extractor, policy retry.Policy) *Retrying {
	return &Retrying{next: e, policy: policy}
}

func (r *Retrying) Prepare(ctx context.Context) error {
	return Prepare(ctx, r.next)
}

func (r *Retrying) Extract(ctx context.Context, path string) (internal.RawExtraction, error) {
	var out internal.RawExtraction
	err := r.policy.Do(ctx, "extract "+filepath.Base(path), func(ctx context.Context) error {
		raw, err := r.next.Extract(ctx, path)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
