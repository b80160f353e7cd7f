package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chronicle-scrobbler/internal/chronicle"
	"chronicle-scrobbler/internal/config"
	"chronicle-scrobbler/internal/db"
	healthapi "chronicle-scrobbler/internal/handlers/health"
	historyapi "chronicle-scrobbler/internal/handlers/history"
	pairapi "chronicle-scrobbler/internal/handlers/pair"
	settingsapi "chronicle-scrobbler/internal/handlers/settings"
	statusapi "chronicle-scrobbler/internal/handlers/status"
	"chronicle-scrobbler/internal/history"
	"chronicle-scrobbler/internal/kodi"
	"chronicle-scrobbler/internal/logging"
	"chronicle-scrobbler/internal/pairing"
	"chronicle-scrobbler/internal/scrobble"
	"chronicle-scrobbler/internal/settings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// ---- Config & Logging ----
	cfg := config.Load()
	logging.SetDefault(logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	}))

	// ---- Database Initialization & Migration ----
	sqlDB, err := db.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func(dbh *sql.DB) { _ = dbh.Close() }(sqlDB)

	if err := db.MigrateUp(cfg.SQLitePath); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// ---- Stores & Clients ----
	store := settings.New(sqlDB)
	sink := chronicle.New(cfg.ChronicleURL, store.APIKey)
	recorder := history.NewRecorder(sqlDB)
	pairManager := pairing.NewManager(sink, store, cfg.DeviceName)

	kodiClient := kodi.NewClient(kodi.WSConfig{
		URL:      cfg.KodiWSURL,
		RetryMax: time.Duration(cfg.KodiRetryMax) * time.Second,
	})
	reader := kodi.NewReader(kodiClient)

	// ---- Scrobble Engine ----
	monitor := scrobble.NewMonitor(reader, sink, store, scrobble.Options{
		PlayerName: cfg.ClientName,
		Tick:       time.Duration(cfg.TickSec) * time.Second,
		JoinWait:   time.Duration(cfg.ShutdownSec) * time.Second,
	})

	router := kodi.NewSignalRouter(monitor)
	kodiClient.NotificationHandler = router.Handle
	kodiClient.DisconnectHandler = router.HandleDisconnect

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kodiClient.Start(ctx)
	defer kodiClient.Stop()

	monitor.Start()
	defer monitor.Stop()

	// Pick up media that was already mid-play when the daemon came up: no
	// OnPlay notification will ever arrive for it.
	if cfg.SnapshotOnDial {
		go func() {
			time.Sleep(3 * time.Second)
			monitor.OnStart()
		}()
	}

	// ---- Event fan-out: history log + live status websocket ----
	broadcaster := statusapi.NewBroadcaster()
	defer broadcaster.Close()
	go func() {
		for ev := range monitor.Events() {
			recorder.Record(ev)
			broadcaster.Publish(ev)
		}
	}()

	// ---- Fiber v3 App ----
	app := fiber.New(fiber.Config{})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", healthapi.Health(sqlDB, monitor))
	app.Get("/health/chronicle", healthapi.Chronicle(sink))

	app.Get("/settings", settingsapi.GetSettings(store))
	app.Put("/settings/:key", settingsapi.UpdateSetting(store))

	app.Post("/pair/start", pairapi.Start(pairManager))
	app.Get("/pair/status", pairapi.Status(pairManager))
	app.Post("/pair/cancel", pairapi.Cancel(pairManager))

	app.Get("/status", statusapi.Current(monitor, reader))
	app.Get("/status/ws", statusapi.Upgrade, statusapi.WS(broadcaster))

	app.Get("/history", historyapi.Recent(recorder))

	addr := ":8484"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}

	go func() {
		<-ctx.Done()
		logging.Info("shutdown requested")
		_ = app.Shutdown()
	}()

	logging.Info("chronicle-scrobbler starting", "addr", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}
