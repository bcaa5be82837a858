package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("participants")

		collection.Fields.Add(
			&core.TextField{
				Name:     "session_id",
				Required: true,
			},
			&core.TextField{
				Name:     "name",
				Required: true,
				Max:      120,
			},
			&core.EmailField{
				Name:     "email",
				Required: true,
			},
			&core.TextField{
				Name: "specialty",
				Max:  120,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"registered",
					"playing",
					"completed",
					"disqualified",
				},
			},
			&core.DateField{
				Name: "completed_at",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_participants_session", false, "session_id", "")
		collection.AddIndex("idx_participants_email", false, "email", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("participants")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
