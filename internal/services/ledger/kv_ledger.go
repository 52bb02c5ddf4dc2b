package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gate-system/internal/status"
	"gate-system/internal/store"
	"gate-system/models"
)

const saleKeyPrefix = "sale:"

// KVLedger keeps sale records as JSON under sale:<ticketId>.
type KVLedger struct {
	store store.Store
}

func NewKVLedger(s store.Store) *KVLedger {
	return &KVLedger{store: s}
}

func (l *KVLedger) Lookup(ctx context.Context, ticketID string) LookupResult {
	data, err := l.store.Get(ctx, saleKeyPrefix+ticketID)
	if errors.Is(err, status.ErrNotFound) {
		return NotFound()
	}
	if err != nil {
		return LookupFailed(fmt.Errorf("ledger: get %s: %w", ticketID, err))
	}

	var rec models.SaleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return LookupFailed(fmt.Errorf("ledger: decode %s: %w", ticketID, err))
	}
	return Found(rec)
}

// Put writes a sale record. Sale records never expire.
func (l *KVLedger) Put(ctx context.Context, rec models.SaleRecord) error {
	if strings.TrimSpace(rec.TicketID) == "" {
		return fmt.Errorf("ledger: %w: empty ticket id", status.ErrInvalidArgument)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, saleKeyPrefix+rec.TicketID, data, 0)
}

// ListByMatch returns the sales for one match in ticket id order.
func (l *KVLedger) ListByMatch(ctx context.Context, matchID string) ([]models.SaleRecord, error) {
	var sales []models.SaleRecord
	err := l.store.Scan(ctx, saleKeyPrefix, func(key string, value []byte) error {
		var rec models.SaleRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("ledger: decode %s: %w", key, err)
		}
		if rec.MatchID == matchID {
			sales = append(sales, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}
