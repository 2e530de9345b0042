package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/habithive/habithive/auth"
	"github.com/habithive/habithive/config"
	"github.com/habithive/habithive/metrics"
	"github.com/habithive/habithive/notifications/email"
	"github.com/habithive/habithive/queue"
	"github.com/habithive/habithive/server"
	"github.com/habithive/habithive/storage/cache"
	storage "github.com/habithive/habithive/storage/persistent"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := config.LoadDotenv(*envPath); err != nil {
		log.Fatalf("error loading %s: %v", *envPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	rawStore, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.DBName, cfg.Storage.URI)
	if err != nil {
		log.Fatalf("error initializing storage: %v", err)
	}
	defer rawStore.Disconnect()

	collector := metrics.New()
	store := storage.WithInstrumentation(rawStore, cfg.Storage.Backend, collector.StoreOp)
	authSvc := auth.NewService(store, cfg.Auth.SigningKey)
	srv := server.New(store, authSvc, cfg.Auth.SigningKey).WithMetrics(collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var viewCache cache.CacheInterface
	if cfg.Cache.RedisURL != "" {
		viewCache, err = cache.NewCache(cfg.Cache.RedisURL)
		if err != nil {
			log.Fatalf("error initializing cache: %v", err)
		}
		defer viewCache.Disconnect()
		srv.WithCache(viewCache)
	}

	if cfg.Reminders.Enabled() {
		if viewCache == nil {
			log.Fatal("reminders require cache.redis_url for delivery dedup")
		}
		if err := email.InitEmailService(cfg.Reminders.SMTPServer, cfg.Reminders.SMTPSender, cfg.Reminders.SMTPPassword); err != nil {
			log.Fatalf("error initializing email service: %v", err)
		}

		reminderQueue, err := queue.BuildReminderQueue(
			cfg.Reminders.AMQPURL, cfg.Reminders.Producers, cfg.Reminders.Consumers, viewCache)
		if err != nil {
			log.Fatalf("error initializing reminder queue: %v", err)
		}
		if _, _, err := reminderQueue.StartConsumers(ctx); err != nil {
			log.Fatal("error starting queue consumers: ", err)
		}

		dispatcher := queue.NewDispatcher(store, reminderQueue, cfg.Reminders.ScanInterval)
		dispatcher.OnPublish = collector.ReminderPublished
		go dispatcher.Run(ctx)
	}

	go func() {
		if err := srv.Start(cfg.Listen.Addr, cfg.Listen.ReadTimeout, cfg.Listen.WriteTimeout); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Printf("received %s, shutting down", sig)
}
