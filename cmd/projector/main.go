package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/config"
	kafkax "github.com/lokapasar/marketplace/internal/kafka"
	"github.com/lokapasar/marketplace/internal/logging"
	"github.com/lokapasar/marketplace/internal/orders"
	"github.com/lokapasar/marketplace/internal/projector"
	"github.com/lokapasar/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName + "-projector")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Cache: &redisx.StatusCache{RDB: rdb},
		Dedup: &redisx.Deduper{RDB: rdb, Consumer: "projector"},
		Log:   log,
	}

	group := getenv("PROJECTOR_GROUP", "order-projector")
	workers := mustAtoi(os.Getenv("PROJECTOR_WORKERS"), 4)

	topics := []string{orders.TopicOrderCreated, orders.TopicOrderStatus, orders.TopicPaymentStatus}
	for _, topic := range topics {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers, log)
		go func(topic string) {
			log.Info("projector consumer started",
				zap.String("group", group), zap.String("topic", topic), zap.Int("workers", workers))
			if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
				log.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				cancel()
			}
		}(topic)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down projector")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
