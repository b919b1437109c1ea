package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-directmessages/internal/api"
	"github.com/npezzotti/go-directmessages/internal/config"
	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/feed"
	"github.com/npezzotti/go-directmessages/internal/presence"
	"github.com/npezzotti/go-directmessages/internal/server"
	"github.com/npezzotti/go-directmessages/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func openStore(cfg *config.Config, logger *log.Logger) (database.Repository, error) {
	if cfg.Store == config.StoreMemory {
		logger.Println("using in-memory store")
		return database.NewMemoryRepository(), nil
	}

	db, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func main() {
	logger := log.New(os.Stderr, "[go-dm] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config:", err)
	}

	var allowedOrigins, kafkaBrokers stringSliceFlag
	flag.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "server address")
	flag.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database connection string")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "store backend: postgres or memory")
	flag.BoolVar(&cfg.MigrateOnStart, "migrate", cfg.MigrateOnStart, "apply database migrations on start")
	flag.DurationVar(&cfg.StoreTimeout, "store-timeout", cfg.StoreTimeout, "timeout of a single store call")
	flag.IntVar(&cfg.StoreRetries, "store-retries", cfg.StoreRetries, "retries of a timed out store call")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the presence mirror, empty to disable")
	flag.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "kafka topic of the message feed")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Var(&kafkaBrokers, "kafka-brokers", "comma-separated kafka brokers for the message feed, empty to disable")
	flag.Parse()

	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}
	if len(kafkaBrokers) > 0 {
		cfg.KafkaBrokers = kafkaBrokers
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config:", err)
	}

	db, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		redisMirror, err := presence.NewRedisMirror(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.Fatal("presence mirror:", err)
		}
		mirror = redisMirror
	}
	defer mirror.Close()

	var publisher feed.Publisher = feed.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, db, statsUpdater, server.Options{
		StoreTimeout: cfg.StoreTimeout,
		StoreRetries: cfg.StoreRetries,
		Mirror:       mirror,
		Feed:         publisher,
	})
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	purged, err := chatServer.PurgeStale(context.Background())
	if err != nil {
		logger.Fatal("purge stale users:", err)
	}
	if purged > 0 {
		logger.Printf("purged %d stale user(s)", purged)
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
