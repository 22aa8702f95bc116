package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lmittmann/tint"

	"github.com/meshconf/meshconf/internal/config"
	"github.com/meshconf/meshconf/internal/signalling"
)

func main() {
	configDir := flag.String("config", "conf", "directory holding relay.yaml or relay.json")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(*logLevel),
		TimeFormat: time.TimeOnly,
	})))

	manager, err := config.NewManager(*configDir)
	if err != nil {
		slog.Error("failed to load configuration", "dir", *configDir, "error", err)
		os.Exit(1)
	}
	cfg := manager.Get()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	server := signalling.NewServer(manager, app)
	defer server.Close()
	server.SetupRoutes()

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	if cfg.Security.TLSCrtFile != nil && cfg.Security.TLSKeyFile != nil {
		slog.Info("relay listening with TLS", "addr", addr)
		if err := app.ListenTLS(addr, *cfg.Security.TLSCrtFile, *cfg.Security.TLSKeyFile); err != nil {
			slog.Error("server stopped", "error", err)
			os.Exit(1)
		}
		return
	}
	slog.Info("relay listening", "addr", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
