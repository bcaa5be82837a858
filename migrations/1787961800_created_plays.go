package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("plays")

		collection.Fields.Add(
			&core.TextField{
				Name:     "session_id",
				Required: true,
			},
			&core.TextField{
				Name:     "participant_id",
				Required: true,
			},
			&core.TextField{
				Name: "question_id",
			},
			&core.BoolField{
				Name: "answered_correctly",
			},
			&core.TextField{
				Name: "score",
			},
			&core.TextField{
				Name: "prize_won",
			},
			&core.JSONField{
				Name: "game_details",
			},
			&core.TextField{
				Name: "origin",
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

		collection.AddIndex("idx_plays_session", false, "session_id", "")
		collection.AddIndex("idx_plays_participant", false, "participant_id", "")
		collection.AddIndex("idx_plays_prize", false, "participant_id, prize_won", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("plays")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
