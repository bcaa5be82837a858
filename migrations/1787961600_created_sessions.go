package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("sessions")

		collection.Fields.Add(
			&core.TextField{
				Name:     "admin_id",
				Required: true,
			},
			&core.TextField{
				Name: "join_code",
				Max:  12,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"pending_player_registration",
					"player_registered",
					"playing",
					"completed",
					"archived",
					"closed",
				},
			},
			&core.TextField{
				Name: "player_name",
			},
			&core.EmailField{
				Name: "player_email",
			},
			&core.TextField{
				Name: "player_specialty",
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

		collection.AddIndex("idx_sessions_admin", false, "admin_id", "")
		collection.AddIndex("idx_sessions_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("sessions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
