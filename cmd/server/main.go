package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustdoc/internal/audit"
	"trustdoc/internal/document"
	"trustdoc/internal/importer"
	imetrics "trustdoc/internal/importer/metrics"
	"trustdoc/internal/platform/config"
	"trustdoc/internal/platform/database"
	"trustdoc/internal/platform/health"
	"trustdoc/internal/platform/httpserver"
	"trustdoc/internal/platform/kafka/producer"
	"trustdoc/internal/platform/logger"
	"trustdoc/internal/platform/middleware"
	"trustdoc/internal/platform/redis"
	"trustdoc/internal/student"
	httptransport "trustdoc/internal/transport/http"
	"trustdoc/internal/verification"
	vmetrics "trustdoc/internal/verification/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
// Postgres, Redis and Kafka are all optional: without them the process runs
// on in-memory stores, which is enough for development and tests.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing trustdoc core",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		if err := pool.Migrate(); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Acks:            "all",
			Retries:         5,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()
	}

	var (
		auditStore    audit.Store
		documentStore document.Store
		studentStore  student.Store
		jobStore      importer.Store
	)
	if pool != nil {
		auditStore = audit.NewPostgresStore(pool.DB())
		documentStore = document.NewPostgresStore(pool.DB())
		studentStore = student.NewPostgresStore(pool.DB())
		jobStore = importer.NewPostgresStore(pool.DB())
	} else {
		auditStore = audit.NewInMemoryStore()
		documentStore = document.NewInMemoryStore()
		studentStore = student.NewInMemoryStore()
		jobStore = importer.NewInMemoryStore()
	}

	recorderOpts := []audit.Option{audit.WithLogger(log)}
	if kafkaProducer != nil {
		recorderOpts = append(recorderOpts, audit.WithKafkaMirror(kafkaProducer, cfg.KafkaAuditTopic))
	}
	recorder := audit.NewRecorder(auditStore, recorderOpts...)

	var sequencer document.Sequencer
	if redisClient != nil {
		sequencer = document.NewRedisSequencer(redisClient.Client)
	} else {
		sequencer = document.NewRandomSequencer()
	}

	hasher := document.NewHasher(cfg.MasterSecret)
	documents := document.NewService(
		documentStore,
		document.NewGenerator(sequencer),
		hasher,
		recorder,
		document.WithLogger(log),
	)

	engine := verification.NewEngine(documentStore, hasher, recorder,
		verification.WithLogger(log),
		verification.WithMetrics(vmetrics.New()),
	)

	importOpts := []importer.ServiceOption{
		importer.WithLogger(log),
		importer.WithMetrics(imetrics.New()),
		importer.WithWorkers(cfg.ImportWorkers),
		importer.WithBudget(cfg.ImportBudget),
	}
	if pool != nil {
		importOpts = append(importOpts, importer.WithConnectionStore(importer.NewPostgresConnectionStore(pool.DB())))
	}
	imports := importer.NewService(jobStore, studentStore, recorder, importOpts...)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	sessions := middleware.NewSessionValidator(cfg.JWTSigningKey)
	handler := httptransport.NewHandler(documents, engine, imports, recorder, cfg.VerificationBaseURL, log)
	router := httptransport.NewRouter(handler, sessions, healthHandler, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	// Let running import jobs reach a terminal state before exit.
	imports.Wait()

	log.Info("server stopped")
}
