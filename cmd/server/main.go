// Package main provides the entry point for the xlink server, which manages
// linked X accounts and their OAuth credentials and dispatches credentialed
// calls to the X API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/xlink/internal/api"
	"github.com/router-for-me/xlink/internal/cipher"
	"github.com/router-for-me/xlink/internal/config"
	"github.com/router-for-me/xlink/internal/logging"
	"github.com/router-for-me/xlink/internal/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// .env is optional; environment overrides still apply without one.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	logging.SetDebug(cfg.Debug)
	if cfg.LogFile != "" {
		logging.EnableFileOutput(cfg.LogFile)
	}
	log.WithFields(log.Fields{
		"version": Version,
		"commit":  Commit,
		"built":   BuildDate,
	}).Info("starting xlink server")

	if cfg.EncryptionSecret == "" {
		log.Fatal("encryption-secret is required; set it in the config file or via X_TOKEN_ENCRYPTION_KEY")
	}
	if cfg.X.ClientID == "" {
		log.Fatal("x.client-id is required; set it in the config file or via X_CLIENT_ID")
	}

	cip, err := cipher.New(cfg.EncryptionSecret)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize token cipher")
	}
	st, err := store.Open(cfg.DatabasePath, cip)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer func() { _ = st.Close() }()

	server := api.New(cfg, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			logging.SetDebug(updated.Debug)
			server.UpdateConfig(updated)
		}); err != nil {
			log.WithError(err).Warn("config watcher stopped")
		}
	}()

	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("server exited with error")
	}
	log.Info("xlink server stopped")
}
