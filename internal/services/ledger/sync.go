package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"gate-system/models"
)

const syncTimeout = 5 * time.Second

// Syncer mirrors the sales collection into a KVLedger so gates can verify
// from Redis while sales are managed in PocketBase.
type Syncer struct {
	ledger *KVLedger
}

func NewSyncer(l *KVLedger) *Syncer {
	return &Syncer{ledger: l}
}

// SyncAll copies every sale record from db.
func (s *Syncer) SyncAll(ctx context.Context, db dbx.Builder) (int, error) {
	var rows []saleRow
	err := db.Select("id", "ticket_id", "holder_id", "match_id", "seat_number", "status", "price", "purchased_at").
		From(SalesTable).
		OrderBy("ticket_id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return 0, fmt.Errorf("ledger: load sales: %w", err)
	}

	for _, row := range rows {
		if err := s.ledger.Put(ctx, row.record()); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// Bind keeps the mirror current on record changes. A deleted sale is
// mirrored as cancelled so it stops admitting.
func (s *Syncer) Bind(app core.App) {
	app.OnRecordAfterCreateSuccess(SalesTable).BindFunc(func(e *core.RecordEvent) error {
		s.mirror("create", SaleFromRecord(e.Record))
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess(SalesTable).BindFunc(func(e *core.RecordEvent) error {
		for _, sale := range updatedSales(e.Record.Original(), e.Record) {
			s.mirror("update", sale)
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess(SalesTable).BindFunc(func(e *core.RecordEvent) error {
		sale := SaleFromRecord(e.Record)
		sale.Status = models.SaleStatusCancelled
		s.mirror("delete", sale)
		return e.Next()
	})
}

// mirror never fails the PocketBase operation that triggered it.
func (s *Syncer) mirror(hook string, sale models.SaleRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if err := s.ledger.Put(ctx, sale); err != nil {
		slog.Error("Failed to mirror sale to ledger",
			"ticket_id", sale.TicketID,
			"hook", hook,
			"error", err,
		)
		return
	}
	slog.Info("Mirrored sale to ledger", "ticket_id", sale.TicketID, "status", sale.Status, "hook", hook)
}

// updatedSales returns the sales to mirror after an update. When the ticket
// id was edited the old id is retired as cancelled, otherwise its mirror
// would keep admitting.
func updatedSales(original, updated *core.Record) []models.SaleRecord {
	sales := []models.SaleRecord{SaleFromRecord(updated)}
	if original == nil {
		return sales
	}
	oldID := original.GetString("ticket_id")
	if oldID != "" && oldID != sales[0].TicketID {
		retired := SaleFromRecord(original)
		retired.Status = models.SaleStatusCancelled
		sales = append(sales, retired)
	}
	return sales
}

// SaleFromRecord converts a sales collection record. The price is stored as
// a decimal string; an unparsable one reads as zero.
func SaleFromRecord(r *core.Record) models.SaleRecord {
	return models.SaleRecord{
		TicketID:    r.GetString("ticket_id"),
		HolderID:    r.GetString("holder_id"),
		MatchID:     r.GetString("match_id"),
		SeatNumber:  r.GetString("seat_number"),
		Status:      models.SaleStatus(r.GetString("status")),
		Price:       parsePrice(r.GetString("price")),
		PurchasedAt: time.Unix(int64(r.GetInt("purchased_at")), 0).UTC(),
	}
}

func parsePrice(raw string) decimal.Decimal {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return price
}
