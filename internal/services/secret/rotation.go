package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gate-system/internal/clock"
	"gate-system/internal/status"
	"gate-system/utils"
)

// RotationState is where the secret set stands in the rotation cycle.
type RotationState string

const (
	// StateActive: only an active secret exists.
	StateActive RotationState = "active"
	// StatePendingPromotion: a new secret is staged and waits for the next
	// rotation to become active.
	StatePendingPromotion RotationState = "pending_promotion"
	// StateUninitialized: no active secret yet.
	StateUninitialized RotationState = "uninitialized"
)

// RotationResult describes what one Rotate call did.
type RotationResult struct {
	Action    string        `json:"action"` // pending_created, promoted, initialized
	State     RotationState `json:"state"`
	RotatedAt time.Time     `json:"rotatedAt"`
}

const secretBytes = 64

// Rotator drives the two-step rotation: stage a pending secret, then on the
// next invocation promote it and archive the previous one. The archived
// secret keeps verifying for the provider's grace window. Issuance always
// uses the active secret.
type Rotator struct {
	store    ParameterStore
	name     string
	clock    clock.Clock
	provider *Provider
	generate func() (string, error)
}

func NewRotator(store ParameterStore, name string, provider *Provider, c clock.Clock) *Rotator {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Rotator{
		store:    store,
		name:     name,
		clock:    c,
		provider: provider,
		generate: func() (string, error) { return utils.GenerateSecret(secretBytes) },
	}
}

func (r *Rotator) State(ctx context.Context) (RotationState, error) {
	if _, err := r.store.GetParameter(ctx, r.name); err != nil {
		if errors.Is(err, status.ErrParameterNotFound) {
			return StateUninitialized, nil
		}
		return "", err
	}
	if _, err := r.store.GetParameter(ctx, pendingName(r.name)); err != nil {
		if errors.Is(err, status.ErrParameterNotFound) {
			return StateActive, nil
		}
		return "", err
	}
	return StatePendingPromotion, nil
}

// Rotate advances the cycle by one step.
func (r *Rotator) Rotate(ctx context.Context) (RotationResult, error) {
	now := r.clock.Now()

	current, err := r.store.GetParameter(ctx, r.name)
	switch {
	case errors.Is(err, status.ErrParameterNotFound):
		fresh, err := r.generate()
		if err != nil {
			return RotationResult{}, fmt.Errorf("generate secret: %w", err)
		}
		if err := r.store.PutParameter(ctx, r.name, fresh); err != nil {
			return RotationResult{}, err
		}
		r.invalidate()
		slog.Info("No existing secret found, initialized active secret", "param", r.name)
		return RotationResult{Action: "initialized", State: StateActive, RotatedAt: now}, nil
	case err != nil:
		return RotationResult{}, err
	}

	pending, err := r.store.GetParameter(ctx, pendingName(r.name))
	switch {
	case errors.Is(err, status.ErrParameterNotFound):
		fresh, err := r.generate()
		if err != nil {
			return RotationResult{}, fmt.Errorf("generate secret: %w", err)
		}
		if err := r.store.PutParameter(ctx, pendingName(r.name), fresh); err != nil {
			return RotationResult{}, err
		}
		slog.Info("Created pending secret, it will be promoted on the next rotation", "param", r.name)
		return RotationResult{Action: "pending_created", State: StatePendingPromotion, RotatedAt: now}, nil
	case err != nil:
		return RotationResult{}, err
	}

	archived, err := json.Marshal(archivedSecret{Value: current, RetiredAt: now.Unix()})
	if err != nil {
		return RotationResult{}, err
	}
	// Archive first so the old secret is never lost if promotion fails.
	if err := r.store.PutParameter(ctx, archivedName(r.name), string(archived)); err != nil {
		return RotationResult{}, err
	}
	if err := r.store.PutParameter(ctx, r.name, pending); err != nil {
		return RotationResult{}, err
	}
	if err := r.store.DeleteParameter(ctx, pendingName(r.name)); err != nil && !errors.Is(err, status.ErrParameterNotFound) {
		return RotationResult{}, err
	}
	r.invalidate()
	slog.Info("Promoted pending secret to active and archived the previous one", "param", r.name)
	return RotationResult{Action: "promoted", State: StateActive, RotatedAt: now}, nil
}

// RunSchedule rotates every interval until ctx is done. With a scheduled
// policy a pending secret is promoted one interval after it was staged.
func (r *Rotator) RunSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.Rotate(ctx)
			if err != nil {
				slog.Error("Scheduled secret rotation failed", "param", r.name, "error", err)
				continue
			}
			slog.Info("Scheduled secret rotation", "param", r.name, "action", res.Action)
		}
	}
}

func (r *Rotator) invalidate() {
	if r.provider != nil {
		r.provider.InvalidateCache()
	}
}
