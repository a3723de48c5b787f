package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/clobcore/matching-engine/internal/app/root"
	"github.com/clobcore/matching-engine/pkg/config"
	"github.com/clobcore/matching-engine/pkg/logger"
	"github.com/clobcore/matching-engine/pkg/redis"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	if err := config.Load(cfg); err != nil {
		panic(err)
	}

	l, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	redisConfig := redis.DefaultConfig()
	redisConfig.Addrs = strings.Split(cfg.RedisConfig.Addrs, ",")
	redisConfig.Password = cfg.RedisConfig.Password
	redisConfig.Username = cfg.RedisConfig.Username
	redisConfig.DB = cfg.RedisConfig.DB
	rclient := redis.NewClient(log, redisConfig)

	if err := rclient.Connect(ctx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "connect_redis"})
		return
	}

	marketCfg, err := config.LoadMarketConfig(cfg.SymbolsFile)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "load_market_config"})
		return
	}

	reg, err := root.New(cfg, marketCfg, rclient, log)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "build_registry"})
		return
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- reg.Run(ctx)
	}()

	log.Info("matching engine started", logger.Field{Key: "symbols", Value: len(marketCfg.Symbols)})

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", logger.Field{Key: "signal", Value: sig.String()})
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			log.Error(err, logger.Field{Key: "action", Value: "engine_run"})
		}
	}

	if err := reg.Close(); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "close_registry"})
	}

	if closer, ok := rclient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Error(err, logger.Field{Key: "action", Value: "close_redis_client"})
		}
	}

	log.Info("matching engine shutdown complete")
}
