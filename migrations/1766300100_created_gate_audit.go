package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("gate_audit")

		collection.Fields.Add(
			&core.TextField{Name: "audit_id", Required: true},
			&core.NumberField{Name: "timestamp", OnlyInt: true},
			&core.TextField{Name: "result", Required: true},
			&core.TextField{Name: "jti"},
			&core.TextField{Name: "ticket_id"},
			&core.TextField{Name: "match_id"},
			&core.TextField{Name: "seat_number"},
			&core.TextField{Name: "gate_id"},
			&core.TextField{Name: "device_id"},
			&core.TextField{Name: "gatekeeper_id"},
			&core.TextField{Name: "token_fingerprint"},
			&core.NumberField{Name: "expires_at", OnlyInt: true},
			&core.NumberField{Name: "checked_at", OnlyInt: true},
			&core.TextField{Name: "message"},
		)

		collection.AddIndex("idx_gate_audit_audit_id", true, "audit_id", "")
		collection.AddIndex("idx_gate_audit_gate_ts", false, "gate_id, timestamp", "")
		collection.AddIndex("idx_gate_audit_jti", false, "jti", "")

		// Append-only: records are written by the service, never through the API.
		collection.ListRule = nil
		collection.ViewRule = nil
		collection.CreateRule = nil
		collection.UpdateRule = nil
		collection.DeleteRule = nil

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("gate_audit")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
