package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/tickets/cache"
	ticket_db "ms-checkin/internal/tickets/db"
	qr "ms-checkin/internal/tickets/qr_generator"
	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/tickets/ticket_api"
	"ms-checkin/internal/utils"
)

func openPostgres(cfg config.DatabaseConfig, log *logger.Logger) *sql.DB {
	if cfg.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		_ = sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return sqldb
}

// runMigrations uses its own connection; closing the runner closes it.
func runMigrations(cfg *config.Config, log *logger.Logger) {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to open migration connection: %v", err))
	}
	runner := migrations.NewRunner(bun.NewDB(sqldb, pgdialect.New()), migrations.MigrateOptions{
		MigrationsDir: cfg.Migrations.Dir,
		AutoMigrate:   true,
	}, log)
	defer runner.Close()

	if err := runner.RunMigrations(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
	}
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status), time.Since(start).String())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	pflag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "address the HTTP server listens on")
	pflag.BoolVar(&cfg.Migrations.AutoMigrate, "auto-migrate", cfg.Migrations.AutoMigrate, "apply pending SQL migrations on startup")
	pflag.Parse()

	log := logger.NewLoggerWithWriter(os.Stdout)
	if cfg.Logging.ToFile {
		log = logger.NewLogger()
	}
	defer log.Close()

	log.Info("APP", "Starting Check-In Service initialization")

	ctx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	if cfg.Migrations.AutoMigrate {
		runMigrations(cfg, log)
	}

	sqldb := openPostgres(cfg.Database, log)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	store := ticket_db.New(bunDB)

	feed := sse.NewCheckInEmitter()
	ticketService := tickets.NewTicketService(store, log)
	if ttl := cfg.Tickets.QRTokenTTL; ttl > 0 && ttl <= tickets.MaxCredentialTTL {
		ticketService.CredentialTTL = ttl
	} else {
		log.Warn("CONFIG", fmt.Sprintf("QR_TOKEN_TTL_MINUTES out of range, using %s", tickets.DefaultCredentialTTL))
	}
	ticketService.Feed = feed

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, err := cache.InitializeRedis(cfg.Redis.Addr, log)
		if err != nil {
			log.Warn("CACHE", fmt.Sprintf("Organizer cache disabled: %v", err))
		} else {
			redisClient = client
			ticketService.Organizers.Cache = cache.NewRedisAddressCache(client, cfg.Redis.OrganizerCacheTTL)
		}
	}

	var producer *kafka.Producer
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		ticketService.Publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ConsumedTopics(), cfg.Kafka.GroupID, log)
		dispatcher := kafka.NewDispatcher(ticketService, cfg.Kafka.Topics, log)
		go func() {
			if err := consumer.Start(ctx, dispatcher); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Kafka consumer stopped: %v", err))
			}
		}()
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	roles := auth.RoleConfig{Admin: cfg.Auth.AdminRole, Service: cfg.Auth.ServiceRole}

	handler := ticket_api.NewHandler(ticketService, qr.NewQRGenerator(cfg.Tickets.QRPNGSize), feed, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := sqldb.PingContext(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("unhealthy", err.Error()))
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, roles, log))
		log.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", handler.RegisterRoutes)
		log.Info("ROUTER", "Ticket and check-in routes registered under /api")
	})

	// SSE streams stay open, so no write timeout.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Check-In Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopConsumers()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Info("HTTP", "✅ Check-In Service shutdown complete")
}
