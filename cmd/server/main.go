// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unclebandit/dripsend-backend/internal/config"
	"github.com/unclebandit/dripsend-backend/internal/db"
	"github.com/unclebandit/dripsend-backend/internal/engine"
	"github.com/unclebandit/dripsend-backend/internal/handler"
	"github.com/unclebandit/dripsend-backend/internal/health"
	"github.com/unclebandit/dripsend-backend/internal/metrics"
	"github.com/unclebandit/dripsend-backend/internal/publish"
	"github.com/unclebandit/dripsend-backend/internal/repository"
	"github.com/unclebandit/dripsend-backend/internal/sender"
	"github.com/unclebandit/dripsend-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to DB: ", err)
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	queueRepo := &repository.QueueItemRepository{DB: database}

	// Health scores come from redis when configured; without it every
	// identity reads as fully healthy.
	var source health.Source
	if cfg.RedisAddr != "" {
		source = health.NewRedisSource(cfg.RedisAddr)
	} else {
		log.Println("REDIS_ADDR not set, health governor runs on static scores")
		source = health.NewStaticSource(100)
	}
	governor := health.NewGovernor(source, health.Config{CacheTTL: cfg.HealthCacheTTL})

	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)

	var publisher publish.Publisher = publish.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := publish.NewAMQPPublisher(cfg.AMQPURL, sink)
		if err != nil {
			log.Println("AMQP unavailable, progress events disabled: ", err)
		} else {
			defer amqpPub.Close()
			publisher = amqpPub
		}
	}

	snd := sender.NewMockSender(time.Now().UnixNano(), 0.97)

	controller := engine.NewController(campaignRepo, queueRepo, snd, governor, publisher, sink, engine.Config{
		HealthCheckEvery:  cfg.HealthCheckEvery,
		FlushEvery:        cfg.FlushEvery,
		FlushInterval:     cfg.FlushInterval,
		PausePollInterval: cfg.PausePollInterval,
		BackpressureWait:  cfg.BackpressureWait,
		OrphanAge:         cfg.OrphanAge,
	})

	// Pick up campaigns the previous process left running or paused.
	if err := controller.RecoverOnStartup(); err != nil {
		log.Println("startup recovery: ", err)
	}

	campaignService := service.NewCampaignService(campaignRepo, queueRepo)
	campaignHandler := handler.NewCampaignHandler(campaignService, controller)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	campaignHandler.Routes(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := database.Ping(); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		log.Println("server running on ", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown: stop accepting requests, then let every live
	// loop flush its counters before the process exits. Campaigns stay
	// persisted as running so the next boot resumes them.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Println("http shutdown: ", err)
	}
	if err := controller.Shutdown(ctx); err != nil {
		log.Println("engine shutdown: ", err)
	}
	log.Println("bye")
}
