package models

import "time"

type ReportType string

const (
	ReportStats   ReportType = "stats"
	ReportError   ReportType = "error"
	ReportWarning ReportType = "warning"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportStats, ReportError, ReportWarning:
		return true
	}
	return false
}

// ReportRequest is the status a gate device sends about itself.
type ReportRequest struct {
	GateID         string     `json:"gateId"`
	DeviceID       string     `json:"deviceId"`
	ReportType     ReportType `json:"reportType"`
	ValidTickets   int        `json:"validTickets"`
	InvalidTickets int        `json:"invalidTickets"`
	ReplayAttempts int        `json:"replayAttempts"`
	AvgScanTimeMs  float64    `json:"avgScanTime"`
	Errors         []string   `json:"errors,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// GateReport is a stored device report. Append-only.
type GateReport struct {
	ReportID       string     `json:"reportId"`
	Timestamp      time.Time  `json:"timestamp"`
	GateID         string     `json:"gateId"`
	DeviceID       string     `json:"deviceId"`
	ReportType     ReportType `json:"reportType"`
	ValidTickets   int        `json:"validTickets"`
	InvalidTickets int        `json:"invalidTickets"`
	ReplayAttempts int        `json:"replayAttempts"`
	AvgScanTimeMs  float64    `json:"avgScanTime"`
	Errors         []string   `json:"errors"`
	Message        string     `json:"message"`
}

type ReportResponse struct {
	OK       bool   `json:"ok"`
	ReportID string `json:"reportId,omitempty"`
	Message  string `json:"message"`
}
