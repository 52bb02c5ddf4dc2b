package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("gate_reports")

		collection.Fields.Add(
			&core.TextField{Name: "report_id", Required: true},
			&core.NumberField{Name: "timestamp", OnlyInt: true},
			&core.TextField{Name: "gate_id", Required: true},
			&core.TextField{Name: "device_id", Required: true},
			&core.SelectField{Name: "report_type", Required: true, MaxSelect: 1, Values: []string{"stats", "error", "warning"}},
			&core.NumberField{Name: "valid_tickets", OnlyInt: true},
			&core.NumberField{Name: "invalid_tickets", OnlyInt: true},
			&core.NumberField{Name: "replay_attempts", OnlyInt: true},
			&core.NumberField{Name: "avg_scan_time_ms"},
			&core.JSONField{Name: "errors"},
			&core.TextField{Name: "message"},
		)

		collection.AddIndex("idx_gate_reports_report_id", true, "report_id", "")
		collection.AddIndex("idx_gate_reports_gate_ts", false, "gate_id, timestamp", "")

		// Devices post through /api/v1/gate/report, never the records API.
		collection.ListRule = nil
		collection.ViewRule = nil
		collection.CreateRule = nil
		collection.UpdateRule = nil
		collection.DeleteRule = nil

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("gate_reports")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
