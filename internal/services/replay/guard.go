// Package replay records redeemed token identifiers so a token admits at
// most once.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gate-system/config"
	"gate-system/internal/clock"
	"gate-system/internal/status"
	"gate-system/internal/store"
	"gate-system/models"
)

const (
	keyPrefix  = "replay:"
	DefaultTTL = 24 * time.Hour
)

// Reason explains a refused mark.
type Reason string

const AlreadyUsed Reason = "already_used"

type MarkResult struct {
	OK     bool
	Reason Reason
}

// Guard marks jtis as used through a single conditional insert. A failed
// insert is never retried here; callers decide.
type Guard struct {
	store store.ConditionalStore
	ttl   time.Duration
	clock clock.Clock
}

// NewGuard rejects a ttl shorter than the longest accepted token lifetime,
// since a record must outlive the token it protects.
func NewGuard(s store.ConditionalStore, ttl time.Duration, c clock.Clock) (*Guard, error) {
	if ttl < config.MaxTokenLifetime {
		return nil, fmt.Errorf("replay: ttl %s is shorter than token lifetime %s", ttl, config.MaxTokenLifetime)
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &Guard{store: s, ttl: ttl, clock: c}, nil
}

// TryMark inserts replay:<jti> if absent. Exactly one of any number of
// concurrent calls for the same jti gets OK.
func (g *Guard) TryMark(ctx context.Context, jti, ticketID, gateID string) (MarkResult, error) {
	if strings.TrimSpace(jti) == "" {
		return MarkResult{}, fmt.Errorf("replay: %w: empty jti", status.ErrInvalidArgument)
	}

	now := g.clock.Now()
	data, err := json.Marshal(models.ReplayRecord{
		JTI:       jti,
		TicketID:  ticketID,
		GateID:    gateID,
		UsedAt:    now,
		ExpiresAt: now.Add(g.ttl),
	})
	if err != nil {
		return MarkResult{}, err
	}

	inserted, err := g.store.PutIfAbsent(ctx, keyPrefix+jti, data, g.ttl)
	if err != nil {
		return MarkResult{}, fmt.Errorf("replay: mark %s: %w", jti, err)
	}
	if !inserted {
		return MarkResult{OK: false, Reason: AlreadyUsed}, nil
	}
	return MarkResult{OK: true}, nil
}

// Lookup returns the stored record, or status.ErrNotFound.
func (g *Guard) Lookup(ctx context.Context, jti string) (*models.ReplayRecord, error) {
	data, err := g.store.Get(ctx, keyPrefix+jti)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("replay: get %s: %w", jti, err)
	}
	var rec models.ReplayRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("replay: decode %s: %w", jti, err)
	}
	return &rec, nil
}
