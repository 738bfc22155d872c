package geocode

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Cascade tries each backend in order and returns the first match.
type Cascade struct {
	providers []Client
}

// NewCascade creates a Cascade over the given backends.
func NewCascade(providers ...Client) *Cascade {
	return &Cascade{providers: providers}
}

// Name implements Client.
func (c *Cascade) Name() string { return BackendCascade }

// Geocode implements Client. A backend error moves on to the next backend;
// if nothing matched and at least one backend failed, the last failure is
// returned so the caller sees a rejected lookup rather than a silent miss.
func (c *Cascade) Geocode(ctx context.Context, address string) (*Result, error) {
	var lastErr error
	for _, p := range c.providers {
		result, err := p.Geocode(ctx, address)
		if err == nil && result != nil {
			return result, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if ctx.Err() != nil {
			return nil, err
		}
		zap.L().Debug("cascade: provider error, trying next",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNotFound
}
