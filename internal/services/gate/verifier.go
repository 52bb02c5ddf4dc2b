// Package gate runs the admission decision for a scanned ticket token.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gate-system/internal/clock"
	"gate-system/internal/services/audit"
	"gate-system/internal/services/ledger"
	"gate-system/internal/services/replay"
	"gate-system/internal/services/token"
	"gate-system/internal/status"
	"gate-system/models"
)

const DefaultStoreTimeout = 2 * time.Second

// Response messages shown on the gate operator's screen.
const (
	msgMissingParameters = "jwt, gateId and deviceId are required"
	msgInvalidJWT        = "Invalid JWT token"
	msgInvalidClaims     = "Missing JWT claims (ticketId, sub and jti are required)"
	msgExpired           = "Ticket has expired"
	msgUnsold            = "Ticket is unsold or unknown"
	msgReplay            = "Ticket has already been used"
	msgValid             = "Valid ticket, access granted"
	msgInternalError     = "Internal server error"
)

type TokenDecoder interface {
	Decode(ctx context.Context, raw string) (*models.TicketClaims, error)
}

type ReplayGuard interface {
	TryMark(ctx context.Context, jti, ticketID, gateID string) (replay.MarkResult, error)
}

type Auditor interface {
	Record(ctx context.Context, event models.AuditEvent)
}

type Alerter interface {
	Notify(alert models.SecurityAlert)
}

// Metrics observes verification outcomes. Optional.
type Metrics interface {
	TrackVerification(gateID string, reason models.Reason, elapsed time.Duration)
	TrackReplayAttempt(gateID string)
}

type Config struct {
	// StoreTimeout bounds each sale lookup and replay mark.
	StoreTimeout time.Duration
}

// Verifier classifies a request into exactly one terminal state. Checks run
// in a fixed order and the first failing one decides. Audit and alert side
// effects run after the decision and cannot change it.
type Verifier struct {
	decoder TokenDecoder
	ledger  ledger.Ledger
	guard   ReplayGuard
	auditor Auditor
	alerter Alerter
	clock   clock.Clock
	metrics Metrics
	cfg     Config
}

func NewVerifier(decoder TokenDecoder, l ledger.Ledger, guard ReplayGuard, auditor Auditor, alerter Alerter, c clock.Clock, metrics Metrics, cfg Config) *Verifier {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &Verifier{
		decoder: decoder,
		ledger:  l,
		guard:   guard,
		auditor: auditor,
		alerter: alerter,
		clock:   c,
		metrics: metrics,
		cfg:     cfg,
	}
}

// verification carries one request through the state machine.
type verification struct {
	req    models.VerifyRequest
	state  models.State
	claims *models.TicketClaims
	event  models.AuditEvent
}

func (v *Verifier) Verify(ctx context.Context, req models.VerifyRequest) (result models.VerifyResult) {
	start := time.Now()
	run := &verification{req: req, state: models.StateReceived}

	defer func() {
		if r := recover(); r != nil {
			result = v.fail(ctx, run, fmt.Errorf("panic: %v", r))
		}
		if v.metrics != nil {
			v.metrics.TrackVerification(req.GateID, result.Response.Reason, time.Since(start))
		}
	}()

	return v.run(ctx, run)
}

func (v *Verifier) run(ctx context.Context, run *verification) models.VerifyResult {
	req := run.req

	// 1. Request shape. Not audited.
	if strings.TrimSpace(req.JWT) == "" || strings.TrimSpace(req.GateID) == "" || strings.TrimSpace(req.DeviceID) == "" {
		return reject(models.ReasonMissingParameters, msgMissingParameters)
	}

	run.event = models.AuditEvent{
		GateID:           req.GateID,
		DeviceID:         req.DeviceID,
		GatekeeperID:     req.GatekeeperID,
		TokenFingerprint: audit.Fingerprint(req.JWT),
	}

	// 2. Signature.
	run.state = models.StateDecodingToken
	claims, err := v.decoder.Decode(ctx, req.JWT)
	if err != nil {
		if errors.Is(err, status.ErrTokenMalformed) || errors.Is(err, status.ErrSignatureInvalid) {
			slog.Info("JWT verification failed", "gate_id", req.GateID, "device_id", req.DeviceID, "error", err)
			return v.deny(ctx, run, models.ReasonInvalidJWT, models.AuditInvalidJWT, msgInvalidJWT)
		}
		return v.fail(ctx, run, err)
	}
	run.claims = claims
	run.event.JTI = claims.ID
	run.event.TicketID = claims.TicketID
	run.event.MatchID = claims.MatchID
	run.event.SeatNumber = claims.SeatNumber

	// 3. Required claims.
	if claims.TicketID == "" || claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return v.deny(ctx, run, models.ReasonInvalidClaims, models.AuditInvalidJWT, msgInvalidClaims)
	}

	// 4. Expiry.
	run.state = models.StateCheckingExpiry
	now := v.clock.Now()
	if token.Expired(claims.ExpiresAt, now) {
		expiresAt := claims.ExpiresAt.Time.UTC()
		run.event.ExpiresAt = &expiresAt
		run.event.CheckedAt = &now
		return v.deny(ctx, run, models.ReasonExpired, models.AuditExpired, msgExpired)
	}

	// 5. Sale.
	run.state = models.StateCheckingSale
	lookupCtx, cancel := context.WithTimeout(ctx, v.cfg.StoreTimeout)
	res := v.ledger.Lookup(lookupCtx, claims.TicketID)
	cancel()
	if res.Failed() {
		err := res.Err
		if err == nil {
			err = errors.New("ledger lookup returned no result")
		}
		return v.fail(ctx, run, err)
	}
	if res.Kind == ledger.KindNotFound {
		return v.deny(ctx, run, models.ReasonInvalidTicket, models.AuditInvalidTicket, msgUnsold)
	}
	if !res.Record.Usable() {
		return v.deny(ctx, run, models.ReasonInvalidTicket, models.AuditInvalidTicket, fmt.Sprintf("Ticket is %s", res.Record.Status))
	}

	// 6. Replay.
	run.state = models.StateCheckingReplay
	markCtx, cancel := context.WithTimeout(ctx, v.cfg.StoreTimeout)
	mark, err := v.guard.TryMark(markCtx, claims.ID, claims.TicketID, req.GateID)
	cancel()
	if err != nil {
		return v.fail(ctx, run, err)
	}
	if !mark.OK {
		slog.Warn("Replay attempt detected", "jti", claims.ID, "ticket_id", claims.TicketID, "gate_id", req.GateID, "device_id", req.DeviceID)
		result := v.deny(ctx, run, models.ReasonReplay, models.AuditReplayAttack, msgReplay)
		if v.metrics != nil {
			v.metrics.TrackReplayAttempt(req.GateID)
		}
		v.notify(models.SecurityAlert{
			Type:      models.AlertReplayAttack,
			Severity:  models.SeverityHigh,
			JTI:       claims.ID,
			TicketID:  claims.TicketID,
			GateID:    req.GateID,
			DeviceID:  req.DeviceID,
			Timestamp: v.clock.Now(),
		})
		return result
	}

	// 7. Admit.
	run.state = models.StateAdmitting
	run.event.Result = models.AuditValid
	run.event.Message = msgValid
	v.record(ctx, run.event)
	slog.Info("Ticket admitted", "ticket_id", claims.TicketID, "gate_id", req.GateID, "device_id", req.DeviceID)

	return models.VerifyResult{
		State: models.StateAdmitted,
		Response: models.VerifyResponse{
			OK:         true,
			Reason:     models.ReasonValid,
			TicketID:   claims.TicketID,
			MatchID:    claims.MatchID,
			SeatNumber: claims.SeatNumber,
			Message:    msgValid,
		},
	}
}

func (v *Verifier) deny(ctx context.Context, run *verification, reason models.Reason, result models.AuditResult, message string) models.VerifyResult {
	run.event.Result = result
	run.event.Message = message
	v.record(ctx, run.event)
	return reject(reason, message)
}

// fail ends the run in Errored. The cause is logged and never returned to
// the caller.
func (v *Verifier) fail(ctx context.Context, run *verification, cause error) models.VerifyResult {
	slog.Error("Gate verification failed",
		"state", run.state,
		"gate_id", run.req.GateID,
		"device_id", run.req.DeviceID,
		"jti", run.event.JTI,
		"error", cause,
	)
	if run.state != models.StateReceived {
		run.event.Result = models.AuditInternalError
		run.event.Message = msgInternalError
		v.record(ctx, run.event)
	}
	return models.VerifyResult{
		State: models.StateErrored,
		Response: models.VerifyResponse{
			OK:      false,
			Reason:  models.ReasonInternalError,
			Message: msgInternalError,
		},
	}
}

func (v *Verifier) record(ctx context.Context, event models.AuditEvent) {
	if v.auditor == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Audit recorder panicked", "panic", r)
		}
	}()
	v.auditor.Record(ctx, event)
}

func (v *Verifier) notify(alert models.SecurityAlert) {
	if v.alerter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Alert notifier panicked", "panic", r)
		}
	}()
	v.alerter.Notify(alert)
}

func reject(reason models.Reason, message string) models.VerifyResult {
	return models.VerifyResult{
		State: models.StateRejected,
		Response: models.VerifyResponse{
			OK:      false,
			Reason:  reason,
			Message: message,
		},
	}
}
