package main

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/xtroce/sioux/internal/adminauth"
	"github.com/xtroce/sioux/internal/audit"
	"github.com/xtroce/sioux/internal/bayeux"
	"github.com/xtroce/sioux/internal/config"
	"github.com/xtroce/sioux/internal/exampleadapter"
	"github.com/xtroce/sioux/internal/httpapi"
	"github.com/xtroce/sioux/internal/logger"
	"github.com/xtroce/sioux/internal/pubsub"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	bayeux.SetDebugAssertions(cfg.Debug)

	logger.Infof("Opening audit database: %s", cfg.AuditDBPath)
	auditDB, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		logger.Errorf("Failed to open audit database: %v", err)
		os.Exit(1)
	}
	defer auditDB.Close()

	adminSecretHash, err := adminauth.HashSecret(cfg.AdminSecret)
	if err != nil {
		logger.Errorf("Failed to hash admin secret: %v", err)
		os.Exit(1)
	}
	adminManager := adminauth.NewManager(cfg.AdminSecret)

	ns := exampleadapter.NewNamespace()
	adapter := exampleadapter.New(ns)

	bayeuxConfig := bayeux.Config{
		SessionTimeout:           cfg.SessionTimeout,
		LongPollingTimeout:       cfg.LongPollingTimeout,
		MaxMessagesPerClient:     cfg.MaxMessagesPerClient,
		MaxMessagesSizePerClient: cfg.MaxMessagesSizePerClient,
		KeepUpdatePercent:        cfg.KeepUpdatePercent,
		SupportedConnectionTypes: bayeux.DefaultSupportedConnectionTypes,
	}
	registry := pubsub.NewRegistry(adapter, pubsub.Config{KeepUpdatePercent: cfg.KeepUpdatePercent})
	adapter.SetRegistry(registry)
	connector := bayeux.NewConnector(bayeuxConfig, registry)
	dispatcher := bayeux.NewDispatcher(connector, registry, bayeuxConfig)
	dispatcher.SetAuditor(auditDB)

	router := httpapi.New(dispatcher, registry, connector, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		AdminSecretHash: adminSecretHash,
		AdminManager:    adminManager,
	})

	logger.Infof("Listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		logger.Errorf("Server exited: %v", err)
		os.Exit(1)
	}
}
