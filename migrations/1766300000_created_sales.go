package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("sales")

		collection.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true, Max: 64},
			&core.TextField{Name: "holder_id", Required: true},
			&core.TextField{Name: "match_id"},
			&core.TextField{Name: "seat_number"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "cancelled", "refunded"},
			},
			// Decimal string, never a float.
			&core.TextField{Name: "price", Required: true, Pattern: `^[0-9]+(\.[0-9]+)?$`},
			&core.NumberField{Name: "purchased_at", OnlyInt: true},
		)

		collection.AddIndex("idx_sales_ticket_id", true, "ticket_id", "")
		collection.AddIndex("idx_sales_match_id", false, "match_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("sales")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
