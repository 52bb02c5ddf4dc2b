package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusActive    SaleStatus = "active"
	SaleStatusCancelled SaleStatus = "cancelled"
	SaleStatusRefunded  SaleStatus = "refunded"
)

// SaleRecord is the record of a ticket sale. Read-only to verification.
type SaleRecord struct {
	TicketID    string          `json:"ticketId"`
	HolderID    string          `json:"holderId"`
	MatchID     string          `json:"matchId"`
	SeatNumber  string          `json:"seatNumber"`
	Status      SaleStatus      `json:"status"` // active, cancelled, refunded
	Price       decimal.Decimal `json:"price"`
	PurchasedAt time.Time       `json:"purchasedAt"`
}

// Usable reports whether the sale admits entry. Unknown statuses never do.
func (r SaleRecord) Usable() bool {
	return r.Status == SaleStatusActive
}

// TicketClaims is the claim set carried by a ticket token. The registered
// claims hold sub, jti, iat and exp.
type TicketClaims struct {
	TicketID   string   `json:"ticketId,omitempty"`
	MatchID    string   `json:"matchId,omitempty"`
	SeatNumber string   `json:"seatNumber,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// DeviceClaims is the claim set of an operational gate-device token.
type DeviceClaims struct {
	GateID   string   `json:"gateId"`
	DeviceID string   `json:"deviceId"`
	Scopes   []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}
