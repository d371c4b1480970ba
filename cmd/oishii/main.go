package main

import (
	"log"
	"os"

	"github.com/oishii-app/oishii/internal/api"
	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/config"
	"github.com/oishii-app/oishii/internal/files"
	"github.com/oishii-app/oishii/internal/flow"
	"github.com/oishii-app/oishii/internal/notify"
	"github.com/oishii-app/oishii/internal/store"
	"github.com/oishii-app/oishii/internal/sweeper"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("oishii: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"upload_dir", cfg.UploadDir,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	uploads, err := files.NewService(cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to prepare upload dir: %v", err)
	}

	broker := notify.NewBroker()

	sw := sweeper.New(db, broker, logger, cfg.SweepInterval)
	sw.Start()
	defer sw.Stop()

	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Store:    db,
		Auth:     auth.NewClient(cfg.AuthURL, cfg.AuthAnonKey),
		Verifier: auth.NewVerifier(cfg.AuthJWTSecret, db, logger),
		Flow:     flow.NewClient(cfg.FlowURL, cfg.FlowWorkspaceID, cfg.FlowID, cfg.FlowToken, cfg.FlowRefreshToken),
		Files:    uploads,
		Broker:   broker,
	}, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
