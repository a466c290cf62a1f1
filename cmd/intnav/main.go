// Command intnav runs the navigation core for one robot: it fuses sensor
// measurements arriving over MQTT into a pose estimate, tracks the active
// reference path, and publishes rate-limited wheel commands, while serving
// a monitoring HTTP interface and recording the run to sqlite.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/config"
	"github.com/duckietown/duckietown-intnav/internal/nav/frames"
	"github.com/duckietown/duckietown-intnav/internal/nav/pipeline"
	"github.com/duckietown/duckietown-intnav/internal/navdb"
	"github.com/duckietown/duckietown-intnav/internal/navmon"
	"github.com/duckietown/duckietown-intnav/internal/transport"
	"github.com/duckietown/duckietown-intnav/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to tuning config JSON (defaults baked in when empty)")
	dbFile     = flag.String("db", "intnav.db", "Path to the run database (empty disables recording)")
	listen     = flag.String("listen", ":8080", "Monitor HTTP listen address")
	broker     = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	clientID   = flag.String("client-id", "intnav", "MQTT client id")
	keepRuns   = flag.Int("keep-runs", 20, "Recorded runs to retain, older runs are pruned")
)

func main() {
	flag.Parse()
	log.Printf("intnav %s", version.String())

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	registry := frames.NewRegistry(cfg.GetTransformHistory())
	bridge := transport.NewBridge(cfg, *broker, *clientID)

	var opts []pipeline.Option
	var database *navdb.DB
	if *dbFile != "" {
		var err error
		database, err = navdb.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		if err := database.PruneRuns(*keepRuns); err != nil {
			log.Printf("failed to prune old runs: %v", err)
		}
		runID, err := database.BeginRun(time.Now())
		if err != nil {
			log.Fatalf("failed to begin run: %v", err)
		}
		log.Printf("recording run %s to %s", runID, *dbFile)
		opts = append(opts, pipeline.WithRecorder(database))
	}

	loop, err := pipeline.NewLoop(cfg, registry, bridge, opts...)
	if err != nil {
		log.Fatalf("failed to assemble pipeline: %v", err)
	}
	bridge.Attach(loop)
	if err := bridge.Connect(); err != nil {
		log.Fatalf("failed to connect transport: %v", err)
	}
	defer bridge.Close()

	web := navmon.NewWebServer(navmon.WebServerConfig{
		Address: *listen,
		Loop:    loop,
		DB:      database,
		Tuning:  cfg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			log.Printf("monitor server stopped: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Wait()

	if database != nil {
		if err := database.EndRun(time.Now()); err != nil {
			log.Printf("failed to close run: %v", err)
		}
	}
	log.Print("shutdown complete")
}
