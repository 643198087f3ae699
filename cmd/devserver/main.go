package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tankmates/tankmates/internal/config"
	"github.com/tankmates/tankmates/internal/devserver"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	var users devserver.UserStore
	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			log.Fatal("postgres open failed", zap.Error(err))
		}
		users, err = devserver.NewGormUserStore(db)
		if err != nil {
			log.Fatal("user store init failed", zap.Error(err))
		}
		log.Info("using postgres user store")
	} else {
		users = devserver.NewMemoryUserStore()
		log.Info("using in-memory user store")
	}

	h := devserver.NewHub(context.Background(), users, log)
	handler := devserver.SetupRoutes(h, users, log)

	log.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
