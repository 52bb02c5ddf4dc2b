package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gate-system/internal/clock"
	"gate-system/internal/status"
)

// Mode selects the fetch-failure policy. The zero value is production,
// where a failed fetch is always an error.
type Mode int

const (
	ModeProduction Mode = iota
	ModeDevelopment
)

const (
	DefaultCacheTTL      = time.Hour
	DefaultGraceWindow   = 24 * time.Hour
	DefaultMinRefreshAge = 30 * time.Second
)

// Metrics receives secret fetch outcomes. Optional.
type Metrics interface {
	TrackSecretFetch(result string)
}

// ProviderConfig configures a Provider. Only Name is required.
type ProviderConfig struct {
	// Name is the active parameter. Rotation uses Name+"-new" for the
	// pending secret and Name+"-archived" for the retired one.
	Name        string
	CacheTTL    time.Duration
	GraceWindow time.Duration
	Mode        Mode
	// DevFallback is used only in ModeDevelopment when the store fails.
	DevFallback string
	// MinRefreshAge is how old the cache must be before RefreshStale drops
	// it. Zero means DefaultMinRefreshAge.
	MinRefreshAge time.Duration
}

// snapshot is one fetch of the secret set.
type snapshot struct {
	active     []byte
	archived   []byte
	archivedAt time.Time
	fetchedAt  time.Time
	fallback   bool
}

// Provider serves the current secret with a TTL cache. Safe for concurrent
// use; concurrent refreshes are idempotent.
type Provider struct {
	store   ParameterStore
	cfg     ProviderConfig
	clock   clock.Clock
	metrics Metrics

	mu     sync.RWMutex
	cached *snapshot
}

func NewProvider(store ParameterStore, cfg ProviderConfig, c clock.Clock, metrics Metrics) *Provider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.GraceWindow < 0 {
		cfg.GraceWindow = 0
	}
	if cfg.MinRefreshAge <= 0 {
		cfg.MinRefreshAge = DefaultMinRefreshAge
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &Provider{store: store, cfg: cfg, clock: c, metrics: metrics}
}

// Current returns the active signing secret.
func (p *Provider) Current(ctx context.Context) ([]byte, error) {
	snap, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.active, nil
}

// VerificationSecrets returns the active secret followed by the most
// recently archived one while it is inside the grace window.
func (p *Provider) VerificationSecrets(ctx context.Context) ([][]byte, error) {
	snap, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	secrets := [][]byte{snap.active}
	if len(snap.archived) > 0 && p.clock.Now().Sub(snap.archivedAt) <= p.cfg.GraceWindow {
		secrets = append(secrets, snap.archived)
	}
	return secrets, nil
}

// InvalidateCache forces the next call to fetch from the store.
func (p *Provider) InvalidateCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
	slog.Info("JWT secret cache cleared", "param", p.cfg.Name)
}

// RefreshStale drops the cache when it is at least MinRefreshAge old and
// reports whether it did. A rotation done by another process becomes
// visible here on the first token the cached secrets cannot verify, and a
// stream of forged tokens costs at most one store read per MinRefreshAge.
func (p *Provider) RefreshStale() bool {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil || now.Sub(p.cached.fetchedAt) < p.cfg.MinRefreshAge {
		return false
	}
	p.cached = nil
	slog.Info("JWT secret cache refreshed after unknown signature", "param", p.cfg.Name)
	return true
}

func (p *Provider) load(ctx context.Context) (*snapshot, error) {
	now := p.clock.Now()

	p.mu.RLock()
	snap := p.cached
	p.mu.RUnlock()
	if snap != nil && now.Sub(snap.fetchedAt) < p.cfg.CacheTTL {
		return snap, nil
	}

	fresh, err := p.fetch(ctx, now)
	if err != nil {
		p.track("error")
		if p.cfg.Mode != ModeDevelopment || p.cfg.DevFallback == "" {
			slog.Error("Failed to get JWT secret", "param", p.cfg.Name, "error", err)
			return nil, fmt.Errorf("%w: %v", status.ErrSecretUnavailable, err)
		}
		slog.Warn("Using development fallback JWT secret", "param", p.cfg.Name, "error", err)
		// Not cached: the store is retried on every call.
		return &snapshot{active: []byte(p.cfg.DevFallback), fetchedAt: now, fallback: true}, nil
	}
	p.track("fetched")

	p.mu.Lock()
	p.cached = fresh
	p.mu.Unlock()
	return fresh, nil
}

func (p *Provider) fetch(ctx context.Context, now time.Time) (*snapshot, error) {
	active, err := p.store.GetParameter(ctx, p.cfg.Name)
	if err != nil {
		return nil, err
	}
	if active == "" {
		return nil, errors.New("active secret is empty")
	}

	snap := &snapshot{active: []byte(active), fetchedAt: now}

	archived, err := p.store.GetParameter(ctx, archivedName(p.cfg.Name))
	switch {
	case errors.Is(err, status.ErrParameterNotFound):
	case err != nil:
		// The archived secret is optional; carry on with the active one.
		slog.Warn("Failed to get archived JWT secret", "param", p.cfg.Name, "error", err)
	default:
		var rec archivedSecret
		if err := json.Unmarshal([]byte(archived), &rec); err != nil {
			slog.Warn("Ignoring unreadable archived JWT secret", "param", p.cfg.Name, "error", err)
			break
		}
		snap.archived = []byte(rec.Value)
		snap.archivedAt = time.Unix(rec.RetiredAt, 0).UTC()
	}
	return snap, nil
}

func (p *Provider) track(result string) {
	if p.metrics != nil {
		p.metrics.TrackSecretFetch(result)
	}
}

// archivedSecret is the stored form of a retired secret.
type archivedSecret struct {
	Value     string `json:"value"`
	RetiredAt int64  `json:"retiredAt"`
}

func pendingName(name string) string  { return name + "-new" }
func archivedName(name string) string { return name + "-archived" }
