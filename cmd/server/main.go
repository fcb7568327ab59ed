package main

import (
	"time"

	"chatcore/internal/auth"
	"chatcore/internal/cache"
	"chatcore/internal/config"
	"chatcore/internal/db"
	"chatcore/internal/hub"
	clog "chatcore/internal/log"
	"chatcore/internal/pipeline"
	"chatcore/internal/server"
	"chatcore/internal/store"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		clog.Init("dev")
		log.Fatal().Err(err).Msg("config load")
	}
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	latest, err := cache.Open(cfg.CacheDir)
	if err != nil {
		log.Fatal().Err(err).Msg("cache open")
	}
	defer latest.Close()

	h := hub.New()
	rooms := store.NewRooms(gdb)
	messages := store.NewMessages(gdb)
	pipe := pipeline.New(rooms, messages, latest, h, time.Duration(cfg.CacheTTLSecs)*time.Second)
	authn := auth.NewAuthenticator(cfg.JWTSecret)

	r := server.SetupRouter(cfg, h, pipe, rooms, authn)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("chatcore listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
