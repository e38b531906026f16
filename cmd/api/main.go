package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bank-website/backend/internal/api"
	"github.com/bank-website/backend/internal/config"
	"github.com/bank-website/backend/internal/events"
	kafkaevents "github.com/bank-website/backend/internal/events/kafka"
	"github.com/bank-website/backend/internal/ledger"
	"github.com/bank-website/backend/internal/lib/passwords"
	"github.com/bank-website/backend/internal/storage"
	"github.com/bank-website/backend/internal/storage/mysql"
	"github.com/bank-website/backend/internal/storage/sqlite"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
		slog.String("engine", cfg.Storage.Engine),
	)

	var store storage.AccountStore
	switch cfg.Storage.Engine {
	case "sqlite":
		st, err := sqlite.New(cfg.Storage.Sqlite.Path)
		if err != nil {
			log.Error("Failed to open sqlite database", "error", err)
			os.Exit(1)
		}
		defer st.Stop()
		store = st
	case "mysql":
		st, err := mysql.New(mysql.Config{
			Host: cfg.Storage.Mysql.Host,
			Port: cfg.Storage.Mysql.Port,
			User: cfg.Storage.Mysql.User,
			Pass: cfg.Storage.Mysql.Pass,
			Db:   cfg.Storage.Mysql.Db,
		}, log)
		if err != nil {
			log.Error("Failed to connect to mysql", "error", err)
			os.Exit(1)
		}
		defer st.Stop()
		store = st
	default:
		log.Error("Unknown storage engine", slog.String("engine", cfg.Storage.Engine))
		os.Exit(1)
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafkaevents.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		log.Info("Kafka publisher enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	ldgr := ledger.New(store, passwords.Bcrypt{}, publisher, log, cfg.Storage.OpTimeout)

	apiServer := api.New(cfg, log, ldgr, []byte(cfg.JwtSecret))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", "error", err)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
