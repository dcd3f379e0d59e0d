package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commissionledger/internal/config"
	"commissionledger/internal/handler"
	"commissionledger/internal/infrastructure/cache"
	"commissionledger/internal/infrastructure/database"
	"commissionledger/internal/infrastructure/lock"
	"commissionledger/internal/infrastructure/mq"
	"commissionledger/internal/job"
	"commissionledger/internal/service"
	"commissionledger/pkg/idgen"
	"commissionledger/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Production); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.L().Named("main")

	if err := idgen.Init(int64(cfg.Server.WorkerID)); err != nil {
		return err
	}

	calc, err := service.NewCalculator(cfg.Business.Tier1Rate, cfg.Business.Tier2Rate)
	if err != nil {
		return fmt.Errorf("commission rates: %w", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var locker lock.Locker
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(&cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = lock.NewManager(redisClient, cfg.Business.LockTTL())
	} else {
		log.Warn("redis disabled, relying on database row locks only")
	}

	producer, err := mq.NewSyncProducer(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	group, err := mq.NewConsumerGroup(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer group.Close()

	wallets := service.NewWalletService(db)
	commissions := service.NewCommissionService(db, calc, wallets, locker, &cfg.Business)
	withdraws := service.NewWithdrawService(db, wallets, locker, cfg)
	payments := service.NewPaymentService(db, cfg.Kafka.Topic.CommissionJob)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, producer, cfg.Business.MaxRetryCount)
	go outboxSender.Start(ctx)

	consumer := job.NewCommissionConsumer(commissions, producer,
		cfg.Kafka.Topic.CommissionDeadLetter, cfg.Business.MaxRetryCount, cfg.Business.RetryBackoff())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx, group, cfg.Kafka.Topic.CommissionJob)
	}()

	sweep := job.NewCommissionSweepJob(payments, cfg.Business.SweepDelay())
	go sweep.Start(ctx)

	var scheduler *job.ReconcileScheduler
	if cfg.Reconcile.Enabled {
		scheduler = job.NewReconcileScheduler(service.NewReconcileService(db, cfg.Reconcile.BatchSize))
		if err := scheduler.Start(ctx, cfg.Reconcile.Schedule); err != nil {
			return err
		}
	}

	router := handler.SetupRouter(handler.NewHandler(wallets, commissions, withdraws, payments))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	<-consumerDone

	log.Info("server stopped")
	return nil
}
