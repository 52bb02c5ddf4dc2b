package models

import (
	"time"
)

type AuditResult string

const (
	AuditValid         AuditResult = "valid"
	AuditInvalidJWT    AuditResult = "invalid_jwt"
	AuditExpired       AuditResult = "expired"
	AuditInvalidTicket AuditResult = "invalid_ticket"
	AuditReplayAttack  AuditResult = "replay_attack"
	AuditInternalError AuditResult = "internal_error"
)

// AuditEvent is one verification attempt. Append-only.
type AuditEvent struct {
	AuditID          string      `json:"auditId"`
	Timestamp        time.Time   `json:"timestamp"`
	Result           AuditResult `json:"result"`
	JTI              string      `json:"jti,omitempty"`
	TicketID         string      `json:"ticketId,omitempty"`
	MatchID          string      `json:"matchId,omitempty"`
	SeatNumber       string      `json:"seatNumber,omitempty"`
	GateID           string      `json:"gateId"`
	DeviceID         string      `json:"deviceId"`
	GatekeeperID     string      `json:"gatekeeperId,omitempty"`
	TokenFingerprint string      `json:"tokenFingerprint,omitempty"`
	ExpiresAt        *time.Time  `json:"expiresAt,omitempty"`
	CheckedAt        *time.Time  `json:"checkedAt,omitempty"`
	Message          string      `json:"message,omitempty"`
}

type AlertType string

const AlertReplayAttack AlertType = "REPLAY_ATTACK"

type Severity string

const SeverityHigh Severity = "HIGH"

// SecurityAlert is published when a security-relevant outcome is observed.
type SecurityAlert struct {
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	JTI       string    `json:"jti"`
	TicketID  string    `json:"ticketId"`
	GateID    string    `json:"gateId"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
}
