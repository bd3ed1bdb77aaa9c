package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/config"
	"github.com/lokapasar/marketplace/internal/directory"
	"github.com/lokapasar/marketplace/internal/gateway"
	"github.com/lokapasar/marketplace/internal/httpx"
	kafkax "github.com/lokapasar/marketplace/internal/kafka"
	"github.com/lokapasar/marketplace/internal/logging"
	"github.com/lokapasar/marketplace/internal/orders"
	"github.com/lokapasar/marketplace/internal/postgres"
	"github.com/lokapasar/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start()

	repo := &orders.Repo{DB: db}
	dir := &directory.Repo{DB: db}
	gw := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayURL,
		ServerKey: cfg.GatewayServerKey,
		Timeout:   cfg.GatewayTimeout,
	}, log)
	cache := &redisx.StatusCache{RDB: rdb}

	svc := orders.NewService(repo, dir, gw, prod, cache, log, cfg.ServiceName)

	router := httpx.NewRouter(cfg.ServiceName)
	oh := &httpx.OrdersHandler{Svc: svc, Log: log}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)

	prod.Close() // flush & close writer
	prod.WaitClosed()
}
