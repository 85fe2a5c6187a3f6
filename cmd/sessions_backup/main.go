package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/2beens/liftlog/internal/config"
	"github.com/2beens/liftlog/internal/db"
	"github.com/2beens/liftlog/internal/sessions"

	"gopkg.in/natefinch/lumberjack.v2"
)

// sessions google drive backup cmd, runs from a cron job

func main() {
	credentialsFile := flag.String(
		"gd-creds",
		"./liftlog-drive-credentials.json",
		"google drive credentials json",
	)
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	logsPath := flag.String("logs-path", "/var/log/liftlog/sessions-backup.log", "logs file path (empty for stdout)")
	reinit := flag.Bool("reinit", false, "reinitialize all again")

	flag.Parse()

	loggingSetup(*logsPath)

	log.Println("staring sessions backup ...")

	if *credentialsFile == "" {
		log.Fatalln("google drive credentials json not specified")
	}
	if *reinit {
		log.Println("!! attention: will reinitialize all again...")
	}

	credentialsFileBytes, err := os.ReadFile(*credentialsFile)
	if err != nil {
		log.Fatalf("unable to read client secret file: %v", err)
	}

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
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

	s, err := sessions.NewGoogleDriveBackupService(sessions.NewGoogleDriveBackupServiceParams{
		CredentialsJson:   credentialsFileBytes,
		Repo:              sessions.NewRepo(dbPool),
		MetricsSocketDir:  cfg.SessionsUnixSocketAddrDir,
		MetricsSocketFile: cfg.SessionsUnixSocketFileName,
	})
	if err != nil {
		log.Fatalf("failed to create google drive backup service: %s", err)
	}

	baseTime := time.Now()

	if *reinit {
		if err := s.Reinit(ctx, baseTime); err != nil {
			log.Fatalf("reinit failed: %s", err)
		}
		log.Println("reinit done")
		return
	}

	if err := s.DoBackup(ctx, baseTime); err != nil {
		log.Fatalf("%+v", err)
	}
}

func loggingSetup(logFileName string) {
	if logFileName == "" {
		log.SetOutput(os.Stdout)
		return
	}

	if !strings.HasSuffix(logFileName, ".log") {
		logFileName += ".log"
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:  logFileName,
		MaxSize:   50,    // megabytes
		LocalTime: false, // false -> use UTC
		Compress:  true,  // disabled by default
	})
}
