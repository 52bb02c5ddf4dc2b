package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/security"

	"gate-system/models"
)

// ReportsTable is the PocketBase collection holding device reports.
const ReportsTable = "gate_reports"

const recordIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DBSink inserts reports into the gate_reports collection.
type DBSink struct {
	db dbx.Builder
}

func NewDBSink(db dbx.Builder) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Save(ctx context.Context, report models.GateReport) error {
	errs, err := json.Marshal(report.Errors)
	if err != nil {
		return err
	}
	_, err = s.db.Insert(ReportsTable, dbx.Params{
		"id":               security.RandomStringWithAlphabet(15, recordIDAlphabet),
		"report_id":        report.ReportID,
		"timestamp":        report.Timestamp.UnixMilli(),
		"gate_id":          report.GateID,
		"device_id":        report.DeviceID,
		"report_type":      string(report.ReportType),
		"valid_tickets":    report.ValidTickets,
		"invalid_tickets":  report.InvalidTickets,
		"replay_attempts":  report.ReplayAttempts,
		"avg_scan_time_ms": report.AvgScanTimeMs,
		"errors":           string(errs),
		"message":          report.Message,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("report: insert %s: %w", report.ReportID, err)
	}
	return nil
}

// MemorySink keeps reports in process.
type MemorySink struct {
	mu      sync.Mutex
	reports []models.GateReport
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Save(ctx context.Context, report models.GateReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func (m *MemorySink) Reports() []models.GateReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GateReport(nil), m.reports...)
}
