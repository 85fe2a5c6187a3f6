package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/2beens/liftlog/internal/config"
	"github.com/2beens/liftlog/internal/db"
	"github.com/2beens/liftlog/internal/evaluation"
	"github.com/2beens/liftlog/internal/exercises"
	"github.com/2beens/liftlog/internal/logging"
	"github.com/2beens/liftlog/internal/records"
	"github.com/2beens/liftlog/internal/sessions"
	"github.com/2beens/liftlog/internal/telemetry/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// rebuild cmd: wipes all records and replays every completed session, oldest
// first; to be ran after bulk imports, manual data fixes or engine changes

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost: cfg.PostgresHost,
		DBPort: cfg.PostgresPort,
		DBName: cfg.PostgresDBName,
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: os.Getenv("LIFTLOG_REDIS_PASS"),
		DB:       0, // use default DB
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		}
	}()

	orchestrator := evaluation.NewOrchestrator(
		evaluation.NewStore(dbPool),
		sessions.NewRepo(dbPool),
		exercises.NewCachedRepo(exercises.NewRepo(dbPool)),
		records.NewPodiumService(records.NewRepo(dbPool), rdb),
		metrics.NewManager("liftlog", "rebuild", prometheus.NewRegistry()),
	)

	started := time.Now()
	replayed, err := orchestrator.RebuildAll(ctx)
	if err != nil {
		log.Errorf("rebuild finished with errors: %s", err)
	}

	fmt.Printf("rebuild done: %d sessions replayed in %s\n", replayed, time.Since(started))
	if err != nil {
		os.Exit(1)
	}
}
