package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	handlerConfig "github.com/tiendaluna/cobranzas/internal/handler/config"
	loggerConfig "github.com/tiendaluna/cobranzas/internal/logger/config"
	serviceConfig "github.com/tiendaluna/cobranzas/internal/service/config"
)

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Logger  loggerConfig.Config
}

const (
	defaultServerAddr   = ":8080"
	defaultBackendAddr  = "http://localhost:3000"
	defaultLogLevel     = "info"
	defaultExcessStatus = 409
	defaultLocale       = "es-CO"
)

// GetConfig reads flags with environment fallback. A .env file in the
// working directory is honored when present.
func GetConfig() Config {
	_ = godotenv.Load()

	var cfg Config

	flag.StringVar(&cfg.Handler.ServerAddr, "a", defaultServerAddr, "listen address")
	flag.StringVar(&cfg.Service.BackendAddr, "b", defaultBackendAddr, "backend base URL")
	flag.StringVar(&cfg.Logger.LogLevel, "l", defaultLogLevel, "log level")
	flag.Parse()

	if addr := os.Getenv("RUN_ADDRESS"); addr != "" {
		cfg.Handler.ServerAddr = addr
	}
	if addr := os.Getenv("BACKEND_ADDRESS"); addr != "" {
		cfg.Service.BackendAddr = addr
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Logger.LogLevel = lvl
	}

	cfg.Service.ExcessStatusCode = defaultExcessStatus
	if v := os.Getenv("EXCESS_STATUS_CODE"); v != "" {
		if code, err := strconv.Atoi(v); err == nil {
			cfg.Service.ExcessStatusCode = code
		}
	}

	cfg.Service.Locale = defaultLocale
	if loc := os.Getenv("LOCALE"); loc != "" {
		cfg.Service.Locale = loc
	}

	return cfg
}
