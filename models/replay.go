package models

import (
	"time"
)

// ReplayRecord proves a token identifier has been redeemed.
type ReplayRecord struct {
	JTI       string    `json:"jti"`
	TicketID  string    `json:"ticketId"`
	GateID    string    `json:"gateId"`
	UsedAt    time.Time `json:"usedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
