package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/security"

	"gate-system/models"
)

// AuditTable is the PocketBase collection holding audit events.
const AuditTable = "gate_audit"

const recordIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DBSink inserts audit events into the gate_audit collection. Times are
// stored as unix milliseconds; 0 means absent.
type DBSink struct {
	db dbx.Builder
}

func NewDBSink(db dbx.Builder) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Record(ctx context.Context, event models.AuditEvent) error {
	_, err := s.db.Insert(AuditTable, dbx.Params{
		"id":                security.RandomStringWithAlphabet(15, recordIDAlphabet),
		"audit_id":          event.AuditID,
		"timestamp":         event.Timestamp.UnixMilli(),
		"result":            string(event.Result),
		"jti":               event.JTI,
		"ticket_id":         event.TicketID,
		"match_id":          event.MatchID,
		"seat_number":       event.SeatNumber,
		"gate_id":           event.GateID,
		"device_id":         event.DeviceID,
		"gatekeeper_id":     event.GatekeeperID,
		"token_fingerprint": event.TokenFingerprint,
		"expires_at":        unixMilli(event.ExpiresAt),
		"checked_at":        unixMilli(event.CheckedAt),
		"message":           event.Message,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", event.AuditID, err)
	}
	return nil
}

func unixMilli(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
