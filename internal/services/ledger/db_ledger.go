package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/security"
	"github.com/shopspring/decimal"

	"gate-system/internal/status"
	"gate-system/models"
)

// SalesTable is the PocketBase collection holding sale records.
const SalesTable = "sales"

const recordIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type saleRow struct {
	ID          string          `db:"id"`
	TicketID    string          `db:"ticket_id"`
	HolderID    string          `db:"holder_id"`
	MatchID     string          `db:"match_id"`
	SeatNumber  string          `db:"seat_number"`
	Status      string          `db:"status"`
	Price       decimal.Decimal `db:"price"`
	PurchasedAt int64           `db:"purchased_at"`
}

func (r saleRow) record() models.SaleRecord {
	return models.SaleRecord{
		TicketID:    r.TicketID,
		HolderID:    r.HolderID,
		MatchID:     r.MatchID,
		SeatNumber:  r.SeatNumber,
		Status:      models.SaleStatus(r.Status),
		Price:       r.Price,
		PurchasedAt: time.Unix(r.PurchasedAt, 0).UTC(),
	}
}

// DBLedger reads sale records from the sales collection.
type DBLedger struct {
	db dbx.Builder
}

func NewDBLedger(db dbx.Builder) *DBLedger {
	return &DBLedger{db: db}
}

func (l *DBLedger) Lookup(ctx context.Context, ticketID string) LookupResult {
	var row saleRow
	err := l.db.Select("id", "ticket_id", "holder_id", "match_id", "seat_number", "status", "price", "purchased_at").
		From(SalesTable).
		Where(dbx.HashExp{"ticket_id": ticketID}).
		Limit(1).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound()
	}
	if err != nil {
		return LookupFailed(fmt.Errorf("ledger: query %s: %w", ticketID, err))
	}
	return Found(row.record())
}

// Put inserts a sale record. A second record for the same ticket id is
// rejected by the unique index.
func (l *DBLedger) Put(ctx context.Context, rec models.SaleRecord) error {
	if strings.TrimSpace(rec.TicketID) == "" {
		return fmt.Errorf("ledger: %w: empty ticket id", status.ErrInvalidArgument)
	}
	_, err := l.db.Insert(SalesTable, dbx.Params{
		"id":           security.RandomStringWithAlphabet(15, recordIDAlphabet),
		"ticket_id":    rec.TicketID,
		"holder_id":    rec.HolderID,
		"match_id":     rec.MatchID,
		"seat_number":  rec.SeatNumber,
		"status":       string(rec.Status),
		"price":        rec.Price.String(),
		"purchased_at": rec.PurchasedAt.Unix(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("ledger: insert %s: %w", rec.TicketID, err)
	}
	return nil
}

// ListByMatch returns the sales for one match in ticket id order.
func (l *DBLedger) ListByMatch(ctx context.Context, matchID string) ([]models.SaleRecord, error) {
	var rows []saleRow
	err := l.db.Select("id", "ticket_id", "holder_id", "match_id", "seat_number", "status", "price", "purchased_at").
		From(SalesTable).
		Where(dbx.HashExp{"match_id": matchID}).
		OrderBy("ticket_id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("ledger: list match %s: %w", matchID, err)
	}

	sales := make([]models.SaleRecord, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, row.record())
	}
	return sales, nil
}
