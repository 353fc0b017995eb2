// Command ridelogd is the on-device capture daemon. It connects to
// the event broker, runs the capture pipeline and persists
// measurements under the data directory.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ridelog-data/ridelog/internal/config"
	"github.com/ridelog-data/ridelog/internal/db"
	"github.com/ridelog-data/ridelog/internal/feed"
	"github.com/ridelog-data/ridelog/internal/persistence"
	"github.com/ridelog-data/ridelog/internal/session"
	"github.com/ridelog-data/ridelog/internal/track"
)

var (
	configPath = flag.String("config", "", "Path to a JSON config file (defaults apply when empty)")
	dataDir    = flag.String("data", "", "Override the data directory")
	broker     = flag.String("broker", "", "Override the MQTT broker URL")
	migrateUp  = flag.Bool("migrate", false, "Apply pending schema migrations before starting")
)

func main() {
	flag.Parse()

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *dataDir != "" {
		cfg.DataDir = dataDir
	}
	if *broker != "" {
		cfg.MQTTBroker = broker
	}

	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *migrateUp {
		if err := database.MigrateUp(cfg.GetMigrationsDir()); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	deviceID, err := database.DeviceIdentifier()
	if err != nil {
		log.Fatalf("Failed to read device identifier: %v", err)
	}
	log.Printf("Device %s, data directory %s", deviceID, cfg.GetDataDir())

	svc, err := persistence.NewService(persistence.Config{
		DataDir:       cfg.GetDataDir(),
		Store:         database,
		QueueDepth:    cfg.GetQueueDepth(),
		ShutdownGrace: cfg.GetShutdownGrace(),
	})
	if err != nil {
		log.Fatalf("Failed to create persistence service: %v", err)
	}
	defer svc.Shutdown()

	// A crash may have left the last measurement open with damaged
	// files; quarantine those before any new capture.
	if err := svc.MarkCorrupted(); err != nil {
		log.Fatalf("Startup recovery failed: %v", err)
	}

	ctrl, err := session.NewController(session.Config{
		Service:   svc,
		BatchSize: cfg.GetBatchSize(),
		Cleaner: track.BoundedLocationCleaner{
			AccuracyBound:   cfg.GetAccuracyBound(),
			SpeedLowerBound: cfg.GetSpeedLowerBound(),
			SpeedUpperBound: cfg.GetSpeedUpperBound(),
		},
	})
	if err != nil {
		log.Fatalf("Failed to create session controller: %v", err)
	}

	eventFeed := feed.New(feed.Config{
		Broker:        cfg.GetMQTTBroker(),
		ClientID:      cfg.GetMQTTClientID(),
		SensorTopic:   cfg.GetSensorTopic(),
		LocationTopic: cfg.GetLocationTopic(),
		StatusTopic:   cfg.GetStatusTopic(),
		ControlTopic:  cfg.GetControlTopic(),
	}, ctrl.Process(), ctrl)
	if err := eventFeed.Start(); err != nil {
		log.Fatalf("Failed to start event feed: %v", err)
	}
	defer eventFeed.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("ridelogd running, broker %s", cfg.GetMQTTBroker())
	<-ctx.Done()
	log.Printf("Shutting down")
}
