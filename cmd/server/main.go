package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdjuke/crowdjuke/config"
	httpDelivery "github.com/crowdjuke/crowdjuke/internal/delivery/http"
	"github.com/crowdjuke/crowdjuke/internal/delivery/kafka/producer"
	infraRedis "github.com/crowdjuke/crowdjuke/internal/infra/redis"
	"github.com/crowdjuke/crowdjuke/internal/repository"
	"github.com/crowdjuke/crowdjuke/internal/repository/memory"
	"github.com/crowdjuke/crowdjuke/internal/repository/redisrepo"
	"github.com/crowdjuke/crowdjuke/internal/service"
	"github.com/crowdjuke/crowdjuke/pkg/clock"
	pkgKafka "github.com/crowdjuke/crowdjuke/pkg/kafka"
	"github.com/crowdjuke/crowdjuke/pkg/ledger"
	"github.com/crowdjuke/crowdjuke/pkg/lock"
	pkgLog "github.com/crowdjuke/crowdjuke/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	var (
		ssRepo repository.SessionRepository
		eRepo  repository.EntryRepository
		vRepo  repository.VenueRepository
	)
	if cfg.Redis.Enabled {
		redisCli, err := infraRedis.Connect(ctx, cfg.Redis)
		if err != nil {
			l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
		}
		defer infraRedis.Disconnect(redisCli)

		ssRepo = redisrepo.NewSessionRepository(redisCli, l)
		eRepo = redisrepo.NewEntryRepository(redisCli, l)
		vRepo = redisrepo.NewVenueRepository(redisCli, l)
	} else {
		l.Warn(ctx, "Redis disabled, using in-memory storage")
		ssRepo = memory.NewSessionRepository()
		eRepo = memory.NewEntryRepository()
		vRepo = memory.NewVenueRepository()
	}

	var prod producer.Producer
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = producer.NewProducer(kafkaSyncProd, l)
		defer prod.Close()
	}

	ldg := ledger.NewHTTP(ledger.HTTPConfig{
		BaseURL: cfg.Ledger.BaseURL,
		Timeout: cfg.Ledger.Timeout,
	})

	clk := clock.New()
	locks := lock.NewKeyed()

	ssSvc := service.NewSessionService(ssRepo, eRepo, locks, cfg.Queue.LockTimeout, cfg.JWT, clk, l)
	bidSvc := service.NewBiddingService(ssRepo, eRepo, vRepo, ldg, locks, cfg.Queue.LockTimeout, prod, clk, l)
	qSvc := service.NewQueueService(ssRepo, eRepo, vRepo, bidSvc, prod, clk, l)
	pbSvc := service.NewPlaybackService(ssRepo, eRepo, locks, cfg.Queue.LockTimeout, prod, clk, l)

	h := httpDelivery.NewHTTPHandler(ssSvc, qSvc, bidSvc, pbSvc, l)
	router := httpDelivery.NewRouter(h, ssSvc)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-quit:
			l.Info(ctx, "Server shutting down...")
		case <-gCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Fatalf(ctx, "Server error: %v", err)
	}

	l.Info(ctx, "Server exited")
}
