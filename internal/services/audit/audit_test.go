package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"gate-system/internal/clock"
	"gate-system/models"
)

var testNow = time.Date(2025, 12, 21, 18, 0, 0, 0, time.UTC)

type failingSink struct{ err error }

func (f failingSink) Record(ctx context.Context, event models.AuditEvent) error { return f.err }

// blockingSink waits for the context to end.
type blockingSink struct{}

func (blockingSink) Record(ctx context.Context, event models.AuditEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

type countingMetrics struct {
	mu    sync.Mutex
	kinds []string
}

func (c *countingMetrics) TrackSideEffectFailure(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func TestRecorder_FillsIDAndTimestamp(t *testing.T) {
	sink := NewMemorySink()
	r := NewRecorder(sink, time.Second, clock.NewFake(testNow), nil)

	r.Record(context.Background(), models.AuditEvent{Result: models.AuditValid, GateID: "GATE-A"})
	r.Record(context.Background(), models.AuditEvent{Result: models.AuditExpired, GateID: "GATE-A"})

	events := sink.Events()
	require.Len(t, events, 2)
	_, err := uuid.Parse(events[0].AuditID)
	assert.NoError(t, err)
	assert.NotEqual(t, events[0].AuditID, events[1].AuditID)
	assert.Equal(t, testNow, events[0].Timestamp)
	assert.Equal(t, models.AuditExpired, events[1].Result)
}

func TestRecorder_FailureIsSwallowedAndCounted(t *testing.T) {
	metrics := &countingMetrics{}
	r := NewRecorder(failingSink{err: errors.New("disk full")}, time.Second, nil, metrics)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), models.AuditEvent{Result: models.AuditValid})
	})
	assert.Equal(t, []string{"audit"}, metrics.kinds)
}

func TestRecorder_BoundedByTimeout(t *testing.T) {
	metrics := &countingMetrics{}
	r := NewRecorder(blockingSink{}, 20*time.Millisecond, nil, metrics)

	start := time.Now()
	r.Record(context.Background(), models.AuditEvent{Result: models.AuditValid})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"audit"}, metrics.kinds)
}

func TestRecorder_IgnoresRequestCancellation(t *testing.T) {
	sink := NewMemorySink()
	r := NewRecorder(sink, time.Second, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Record(ctx, models.AuditEvent{Result: models.AuditReplayAttack})

	assert.Len(t, sink.Events(), 1)
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("header.payload.signature")

	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint("header.payload.signature"))
	assert.NotEqual(t, fp, Fingerprint("header.payload.other"))
	assert.NotContains(t, fp, "payload")
	assert.Empty(t, Fingerprint(""))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sink.Record(context.Background(), models.AuditEvent{
		AuditID:          "a-1",
		Result:           models.AuditReplayAttack,
		GateID:           "GATE-A",
		TokenFingerprint: "0011223344556677",
	})

	require.NoError(t, err)
	out := buf.String()
	assert.True(t, strings.Contains(out, `"result":"replay_attack"`), out)
	assert.Contains(t, out, `"gate_id":"GATE-A"`)
}

func TestFallbackSink(t *testing.T) {
	ctx := context.Background()
	event := models.AuditEvent{AuditID: "a-2", Result: models.AuditValid, GateID: "GATE-B"}

	t.Run("primary healthy", func(t *testing.T) {
		primary, fallback := NewMemorySink(), NewMemorySink()

		require.NoError(t, NewFallbackSink(primary, fallback).Record(ctx, event))

		assert.Len(t, primary.Events(), 1)
		assert.Empty(t, fallback.Events())
	})

	t.Run("primary down", func(t *testing.T) {
		var buf bytes.Buffer
		dbDown := errors.New("database is locked")
		sink := NewFallbackSink(failingSink{err: dbDown}, NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil))))

		err := sink.Record(ctx, event)

		assert.ErrorIs(t, err, dbDown)
		assert.Contains(t, buf.String(), `"audit_id":"a-2"`)
	})

	t.Run("both down", func(t *testing.T) {
		first, second := errors.New("db"), errors.New("log")

		err := NewFallbackSink(failingSink{err: first}, failingSink{err: second}).Record(ctx, event)

		assert.ErrorIs(t, err, first)
		assert.ErrorIs(t, err, second)
	})
}

func TestDBSink_Record(t *testing.T) {
	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	defer db.Close()

	_, err = db.NewQuery(`CREATE TABLE gate_audit (
		id TEXT PRIMARY KEY NOT NULL,
		audit_id TEXT DEFAULT '' NOT NULL,
		timestamp NUMERIC DEFAULT 0 NOT NULL,
		result TEXT DEFAULT '' NOT NULL,
		jti TEXT DEFAULT '' NOT NULL,
		ticket_id TEXT DEFAULT '' NOT NULL,
		match_id TEXT DEFAULT '' NOT NULL,
		seat_number TEXT DEFAULT '' NOT NULL,
		gate_id TEXT DEFAULT '' NOT NULL,
		device_id TEXT DEFAULT '' NOT NULL,
		gatekeeper_id TEXT DEFAULT '' NOT NULL,
		token_fingerprint TEXT DEFAULT '' NOT NULL,
		expires_at NUMERIC DEFAULT 0 NOT NULL,
		checked_at NUMERIC DEFAULT 0 NOT NULL,
		message TEXT DEFAULT '' NOT NULL
	)`).Execute()
	require.NoError(t, err)

	expires := testNow.Add(-time.Minute)
	sink := NewDBSink(db)
	require.NoError(t, sink.Record(context.Background(), models.AuditEvent{
		AuditID:   "a-1",
		Timestamp: testNow,
		Result:    models.AuditExpired,
		JTI:       "jti-1",
		GateID:    "GATE-A",
		DeviceID:  "DEV-7",
		ExpiresAt: &expires,
		CheckedAt: &testNow,
		Message:   "Ticket has expired",
	}))

	var row struct {
		Result    string `db:"result"`
		JTI       string `db:"jti"`
		ExpiresAt int64  `db:"expires_at"`
		Timestamp int64  `db:"timestamp"`
	}
	err = db.Select("result", "jti", "expires_at", "timestamp").
		From(AuditTable).
		Where(dbx.HashExp{"audit_id": "a-1"}).
		One(&row)
	require.NoError(t, err)
	assert.Equal(t, "expired", row.Result)
	assert.Equal(t, "jti-1", row.JTI)
	assert.Equal(t, expires.UnixMilli(), row.ExpiresAt)
	assert.Equal(t, testNow.UnixMilli(), row.Timestamp)
}

func TestDBSink_MissingTable(t *testing.T) {
	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = NewDBSink(db).Record(context.Background(), models.AuditEvent{AuditID: "a-1"})
	assert.ErrorContains(t, err, "audit: insert a-1")
}
