package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"gate-system/internal/status"
	"gate-system/internal/store"
	"gate-system/models"
)

var purchasedAt = time.Date(2025, 12, 1, 10, 30, 0, 0, time.UTC)

func sale(ticketID string, st models.SaleStatus) models.SaleRecord {
	return models.SaleRecord{
		TicketID:    ticketID,
		HolderID:    "user-42",
		MatchID:     "CAN2025-M01",
		SeatNumber:  "B-12",
		Status:      st,
		Price:       decimal.RequireFromString("150.50"),
		PurchasedAt: purchasedAt,
	}
}

func newTestDB(t *testing.T) *dbx.DB {
	t.Helper()
	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewQuery(`CREATE TABLE sales (
		id TEXT PRIMARY KEY NOT NULL,
		ticket_id TEXT DEFAULT '' NOT NULL,
		holder_id TEXT DEFAULT '' NOT NULL,
		match_id TEXT DEFAULT '' NOT NULL,
		seat_number TEXT DEFAULT '' NOT NULL,
		status TEXT DEFAULT '' NOT NULL,
		price TEXT DEFAULT '0' NOT NULL,
		purchased_at NUMERIC DEFAULT 0 NOT NULL
	)`).Execute()
	require.NoError(t, err)
	_, err = db.NewQuery(`CREATE UNIQUE INDEX idx_sales_ticket_id ON sales (ticket_id)`).Execute()
	require.NoError(t, err)
	return db
}

// failingStore fails every call.
type failingStore struct{ err error }

func (f failingStore) Get(ctx context.Context, key string) ([]byte, error) { return nil, f.err }
func (f failingStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return f.err
}
func (f failingStore) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	return f.err
}

func TestLookupResult_ZeroValueIsFailure(t *testing.T) {
	assert.True(t, LookupResult{}.Failed())
	assert.True(t, LookupFailed(errors.New("boom")).Failed())
	assert.False(t, NotFound().Failed())
	assert.False(t, Found(sale("t", models.SaleStatusActive)).Failed())
	assert.Equal(t, "not_found", KindNotFound.String())
}

func TestKVLedger_Lookup(t *testing.T) {
	ctx := context.Background()
	l := NewKVLedger(store.NewMemoryStore(nil))

	require.NoError(t, l.Put(ctx, sale("ticket-1", models.SaleStatusActive)))
	require.NoError(t, l.Put(ctx, sale("ticket-2", models.SaleStatusCancelled)))

	res := l.Lookup(ctx, "ticket-1")
	require.Equal(t, KindFound, res.Kind)
	assert.True(t, res.Record.Usable())
	assert.True(t, res.Record.Price.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, purchasedAt, res.Record.PurchasedAt.UTC())

	res = l.Lookup(ctx, "ticket-2")
	require.Equal(t, KindFound, res.Kind)
	assert.False(t, res.Record.Usable())

	assert.Equal(t, KindNotFound, l.Lookup(ctx, "unsold").Kind)
}

func TestKVLedger_StorageFaultIsNotNotFound(t *testing.T) {
	l := NewKVLedger(failingStore{err: errors.New("connection reset")})

	res := l.Lookup(context.Background(), "ticket-1")

	assert.Equal(t, KindFailed, res.Kind)
	assert.ErrorContains(t, res.Err, "connection reset")
}

func TestKVLedger_CorruptRecordFails(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	require.NoError(t, s.Put(ctx, "sale:ticket-1", []byte("{broken"), 0))

	res := NewKVLedger(s).Lookup(ctx, "ticket-1")

	assert.Equal(t, KindFailed, res.Kind)
}

func TestKVLedger_PutRejectsEmptyTicketID(t *testing.T) {
	err := NewKVLedger(store.NewMemoryStore(nil)).Put(context.Background(), sale(" ", models.SaleStatusActive))
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestKVLedger_ListByMatch(t *testing.T) {
	ctx := context.Background()
	l := NewKVLedger(store.NewMemoryStore(nil))

	other := sale("ticket-3", models.SaleStatusActive)
	other.MatchID = "CAN2025-M02"
	require.NoError(t, l.Put(ctx, sale("ticket-2", models.SaleStatusActive)))
	require.NoError(t, l.Put(ctx, other))
	require.NoError(t, l.Put(ctx, sale("ticket-1", models.SaleStatusRefunded)))

	sales, err := l.ListByMatch(ctx, "CAN2025-M01")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "ticket-1", sales[0].TicketID)
	assert.Equal(t, "ticket-2", sales[1].TicketID)
}

func TestDBLedger_ListByMatch(t *testing.T) {
	ctx := context.Background()
	l := NewDBLedger(newTestDB(t))

	other := sale("ticket-3", models.SaleStatusActive)
	other.MatchID = "CAN2025-M02"
	require.NoError(t, l.Put(ctx, sale("ticket-2", models.SaleStatusActive)))
	require.NoError(t, l.Put(ctx, other))
	require.NoError(t, l.Put(ctx, sale("ticket-1", models.SaleStatusRefunded)))

	sales, err := l.ListByMatch(ctx, "CAN2025-M01")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "ticket-1", sales[0].TicketID)
	assert.Equal(t, "ticket-2", sales[1].TicketID)
	assert.True(t, sales[1].Price.Equal(decimal.RequireFromString("150.50")))

	none, err := l.ListByMatch(ctx, "CAN2025-M99")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDBLedger_Lookup(t *testing.T) {
	ctx := context.Background()
	l := NewDBLedger(newTestDB(t))

	require.NoError(t, l.Put(ctx, sale("ticket-1", models.SaleStatusActive)))
	require.NoError(t, l.Put(ctx, sale("ticket-2", models.SaleStatusRefunded)))

	res := l.Lookup(ctx, "ticket-1")
	require.Equal(t, KindFound, res.Kind, "err: %v", res.Err)
	assert.Equal(t, "user-42", res.Record.HolderID)
	assert.Equal(t, "B-12", res.Record.SeatNumber)
	assert.Equal(t, models.SaleStatusActive, res.Record.Status)
	assert.True(t, res.Record.Price.Equal(decimal.RequireFromString("150.50")), "price %s", res.Record.Price)
	assert.Equal(t, purchasedAt, res.Record.PurchasedAt)

	res = l.Lookup(ctx, "ticket-2")
	require.Equal(t, KindFound, res.Kind)
	assert.False(t, res.Record.Usable())

	assert.Equal(t, KindNotFound, l.Lookup(ctx, "unsold").Kind)
}

func TestDBLedger_DuplicateTicketRejected(t *testing.T) {
	ctx := context.Background()
	l := NewDBLedger(newTestDB(t))

	require.NoError(t, l.Put(ctx, sale("ticket-1", models.SaleStatusActive)))
	assert.Error(t, l.Put(ctx, sale("ticket-1", models.SaleStatusActive)))
}

func TestDBLedger_QueryFailure(t *testing.T) {
	db := newTestDB(t)
	_, err := db.NewQuery("DROP TABLE sales").Execute()
	require.NoError(t, err)

	res := NewDBLedger(db).Lookup(context.Background(), "ticket-1")

	assert.Equal(t, KindFailed, res.Kind)
	assert.Error(t, res.Err)
}
