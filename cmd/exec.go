package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"trivia-kiosk/config"
	"trivia-kiosk/handlers"
	"trivia-kiosk/models"
	"trivia-kiosk/security"
	"trivia-kiosk/services"
	"trivia-kiosk/utils"

	_ "trivia-kiosk/migrations"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pnConfig.UUID = "kiosk-" + uuid.NewString()

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	origin := pnConfig.UUID
	store := services.NewPBStore(app)
	notifier := services.NewNotifier(pn, redisClient, origin)
	reconciler := services.NewReconciler(store, notifier, cfg)
	prizes := services.NewPrizeService(store, origin)
	orchestrator := services.NewOrchestrator(store, reconciler, prizes, cfg)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(app, store, orchestrator, redisClient)
	registrationHandler := handlers.NewRegistrationHandler(app, store, redisClient)
	boardHandler := handlers.NewBoardHandler(app, orchestrator)

	guard := security.NewGuard(redisClient, cfg)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	go reconciler.Run(ctx)
	notifier.Subscribe(ctx, reconciler)
	defer notifier.Unsubscribe()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.CleanupInterval),
		gocron.NewTask(func() {
			if err := reconciler.Cleanup(context.Background()); err != nil {
				slog.Error("queue cleanup failed", "error", err)
			}
		}),
	); err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.Error("scheduler shutdown failed", "error", err)
		}
	}()

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		go restoreActiveSession(redisClient, orchestrator)

		// Session lifecycle endpoints
		e.Router.POST("/api/v1/sessions", guard.RequireAttendantKey(sessionHandler.CreateSession))
		e.Router.GET("/api/v1/sessions/{id}", sessionHandler.GetSession)
		e.Router.PATCH("/api/v1/sessions/{id}/status", guard.RequireAttendantKey(sessionHandler.UpdateStatus))
		e.Router.POST("/api/v1/sessions/{id}/prepare-next", guard.RequireAttendantKey(sessionHandler.PrepareNext))
		e.Router.POST("/api/v1/sessions/{id}/close", guard.RequireAttendantKey(sessionHandler.CloseSession))
		e.Router.POST("/api/v1/sessions/{id}/reset", guard.RequireAttendantKey(sessionHandler.ResetSession))

		// Registration endpoints
		e.Router.POST("/api/v1/sessions/{id}/register", guard.RegistrationRateLimit(registrationHandler.Register))
		e.Router.GET("/api/v1/sessions/{id}/participants", registrationHandler.ListParticipants)
		e.Router.GET("/api/v1/sessions/{id}/queue-position", registrationHandler.QueuePosition)

		// Board endpoints
		e.Router.GET("/api/v1/board/state", boardHandler.State)
		e.Router.POST("/api/v1/board/activate-next", guard.RequireAttendantKey(boardHandler.ActivateNext))
		e.Router.POST("/api/v1/board/confirm-transition", boardHandler.ConfirmTransition)
		e.Router.POST("/api/v1/board/reorder", guard.RequireAttendantKey(boardHandler.Reorder))
		e.Router.POST("/api/v1/board/dequeue", guard.RequireAttendantKey(boardHandler.Dequeue))
		e.Router.POST("/api/v1/board/plays", boardHandler.RecordPlay)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupRecordHooks(app, notifier)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupRecordHooks publishes a change envelope for every committed write
// so remote displays converge without polling the database.
func setupRecordHooks(app *pocketbase.PocketBase, notifier *services.Notifier) {
	tables := []string{
		models.TableSessions,
		models.TableParticipants,
		models.TablePlays,
	}

	app.OnRecordAfterCreateSuccess(tables...).BindFunc(func(e *core.RecordEvent) error {
		notifier.PublishChange(context.Background(), e.Record.Collection().Name, "insert", e.Record.Id, e.Record)
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess(tables...).BindFunc(func(e *core.RecordEvent) error {
		notifier.PublishChange(context.Background(), e.Record.Collection().Name, "update", e.Record.Id, e.Record)
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess(tables...).BindFunc(func(e *core.RecordEvent) error {
		notifier.PublishChange(context.Background(), e.Record.Collection().Name, "delete", e.Record.Id, e.Record)
		return e.Next()
	})
}

// restoreActiveSession rebinds the most recent active session after a
// restart so the board does not come up empty.
func restoreActiveSession(redisClient *redis.Client, orchestrator *services.Orchestrator) {
	ctx := context.Background()

	sessionIDs, err := redisClient.SMembers(ctx, "active_sessions").Result()
	if err != nil {
		log.Printf("Error reading active sessions: %v", err)
		return
	}
	if len(sessionIDs) == 0 {
		log.Println("No active session to restore")
		return
	}

	for _, sessionID := range sessionIDs {
		if err := orchestrator.Bind(ctx, sessionID); err != nil {
			log.Printf("Error rebinding session %s: %v", sessionID, err)
			redisClient.SRem(ctx, "active_sessions", sessionID)
			continue
		}
		log.Printf("Restored session %s", sessionID)
		return
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
