// Package token issues and validates HS256 ticket tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gate-system/internal/clock"
	"gate-system/internal/status"
	"gate-system/models"
)

const (
	TicketLifetime = time.Hour
	DeviceLifetime = 5 * time.Minute

	DeviceSubject = "gate-device"
)

var (
	DefaultTicketScopes = []string{"fan"}
	DeviceScopes        = []string{"gate-ops"}
)

// Only this algorithm is ever accepted. Anything else, "none" included, is
// rejected before a key is looked at.
var signingMethod = jwt.SigningMethodHS256

// SecretSource supplies the signing secret and the set of secrets accepted
// for verification.
type SecretSource interface {
	Current(ctx context.Context) ([]byte, error)
	VerificationSecrets(ctx context.Context) ([][]byte, error)
}

// staleRefresher is implemented by secret sources that cache. RefreshStale
// reports whether the next read will see the store again.
type staleRefresher interface {
	RefreshStale() bool
}

type Codec struct {
	secrets SecretSource
	clock   clock.Clock
	parser  *jwt.Parser
}

func NewCodec(secrets SecretSource, c clock.Clock) *Codec {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Codec{
		secrets: secrets,
		clock:   c,
		// Time-based claims are checked by Verify so that the caller can
		// tell a bad signature from an expired token.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Issue mints a ticket token for holder. ticketID must be a UUID.
func (c *Codec) Issue(ctx context.Context, holder, ticketID string, scopes []string, extra models.TicketClaims) (string, error) {
	if strings.TrimSpace(holder) == "" {
		return "", fmt.Errorf("%w: holder is required", status.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(ticketID); err != nil {
		return "", fmt.Errorf("%w: ticketId must be a UUID", status.ErrInvalidArgument)
	}
	if len(scopes) == 0 {
		scopes = DefaultTicketScopes
	}

	now := c.clock.Now().Truncate(time.Second)
	claims := models.TicketClaims{
		TicketID:   ticketID,
		MatchID:    extra.MatchID,
		SeatNumber: extra.SeatNumber,
		Scopes:     scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   holder,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TicketLifetime)),
		},
	}
	return c.sign(ctx, claims)
}

// IssueDeviceToken mints a short-lived operational token for a gate device.
func (c *Codec) IssueDeviceToken(ctx context.Context, gateID, deviceID string) (string, error) {
	if gateID == "" || deviceID == "" {
		return "", fmt.Errorf("%w: gateId and deviceId are required", status.ErrInvalidArgument)
	}

	now := c.clock.Now().Truncate(time.Second)
	claims := models.DeviceClaims{
		GateID:   gateID,
		DeviceID: deviceID,
		Scopes:   DeviceScopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   DeviceSubject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DeviceLifetime)),
		},
	}
	return c.sign(ctx, claims)
}

// Decode checks the wire format and the signature against every accepted
// secret. It does not look at exp.
func (c *Codec) Decode(ctx context.Context, raw string) (*models.TicketClaims, error) {
	claims := &models.TicketClaims{}
	if err := c.parse(ctx, raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Verify is Decode plus the expiry check.
func (c *Codec) Verify(ctx context.Context, raw string) (*models.TicketClaims, error) {
	claims, err := c.Decode(ctx, raw)
	if err != nil {
		return nil, err
	}
	if Expired(claims.ExpiresAt, c.clock.Now()) {
		return claims, status.ErrTokenExpired
	}
	return claims, nil
}

// VerifyDeviceToken validates an operational token, expiry included.
func (c *Codec) VerifyDeviceToken(ctx context.Context, raw string) (*models.DeviceClaims, error) {
	claims := &models.DeviceClaims{}
	if err := c.parse(ctx, raw, claims); err != nil {
		return nil, err
	}
	if claims.Subject != DeviceSubject || claims.GateID == "" || claims.DeviceID == "" {
		return nil, status.ErrMissingClaims
	}
	if claims.ExpiresAt == nil || Expired(claims.ExpiresAt, c.clock.Now()) {
		return claims, status.ErrTokenExpired
	}
	return claims, nil
}

// Expired reports exp < now at second precision. A missing exp is not
// expired; callers that require exp check for nil themselves.
func Expired(exp *jwt.NumericDate, now time.Time) bool {
	if exp == nil {
		return false
	}
	return exp.Unix() < now.Unix()
}

func (c *Codec) sign(ctx context.Context, claims jwt.Claims) (string, error) {
	secret, err := c.secrets.Current(ctx)
	if err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) parse(ctx context.Context, raw string, claims jwt.Claims) error {
	if _, _, err := c.parser.ParseUnverified(raw, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return fmt.Errorf("%w: %v", status.ErrTokenMalformed, err)
		}
		return fmt.Errorf("%w: %v", status.ErrSignatureInvalid, err)
	}

	err := c.verifySignature(ctx, raw, claims)
	if !errors.Is(err, status.ErrSignatureInvalid) {
		return err
	}
	// The secret may have been rotated by another process since the cache
	// was filled.
	if r, ok := c.secrets.(staleRefresher); ok && r.RefreshStale() {
		return c.verifySignature(ctx, raw, claims)
	}
	return err
}

func (c *Codec) verifySignature(ctx context.Context, raw string, claims jwt.Claims) error {
	candidates, err := c.secrets.VerificationSecrets(ctx)
	if err != nil {
		return err
	}

	for _, secret := range candidates {
		_, err := c.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			continue
		case errors.Is(err, jwt.ErrTokenMalformed):
			return fmt.Errorf("%w: %v", status.ErrTokenMalformed, err)
		default:
			return fmt.Errorf("%w: %v", status.ErrSignatureInvalid, err)
		}
	}
	return status.ErrSignatureInvalid
}
