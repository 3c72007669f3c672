package main

import (
	"log"

	"github.com/shopspring/decimal"

	"github.com/tiendaluna/cobranzas/internal/config"
	"github.com/tiendaluna/cobranzas/internal/handler"
	"github.com/tiendaluna/cobranzas/internal/logger"
	"github.com/tiendaluna/cobranzas/internal/service"
	"github.com/tiendaluna/cobranzas/internal/service/backendclient"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// money fields stay numeric on the wire
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.GetConfig()

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}

	client := backendclient.New(cfg.Service.BackendAddr, cfg.Service.ExcessStatusCode)

	service, err := service.NewService(cfg.Service, client, zaplog)
	if err != nil {
		return err
	}

	return handler.Serve(cfg.Handler, service, zaplog)
}
