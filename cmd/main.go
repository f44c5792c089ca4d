/**
 * @description
 * This is the main entry point for the deposit-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application service, the expiry scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/payscribeclient, pkg/fcmclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Amhaztech0/HazPay-sub000/internal/api"
	"github.com/Amhaztech0/HazPay-sub000/internal/app"
	"github.com/Amhaztech0/HazPay-sub000/internal/config"
	"github.com/Amhaztech0/HazPay-sub000/internal/store"
	"github.com/Amhaztech0/HazPay-sub000/pkg/fcmclient"
	"github.com/Amhaztech0/HazPay-sub000/pkg/payscribeclient"
	"github.com/Amhaztech0/HazPay-sub000/pkg/rabbitmq"
)

func main() {
	// Load .env for local development; environment variables win in deployment.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	// Refuse to boot without the secrets webhook verification depends on.
	// A missing secret must never degrade into unsigned processing.
	if err := cfg.Validate(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config validation failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting deposit-service\" port=%s env=%s", cfg.ServerPort, cfg.PayscribeEnv)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for deposit events. The service can run
	// without it; fan-out degrades to the logging fallback.
	var publisher rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the Payscribe client for virtual account issuance.
	var issuer app.VirtualAccountIssuer
	payscribeAPIKey := strings.TrimSpace(cfg.ActivePayscribeAPIKey())
	if payscribeAPIKey == "" {
		log.Println("level=warn component=bootstrap msg=\"payscribe api key missing; virtual account issuance disabled\" env=PAYSCRIBE_API_KEY")
	} else {
		baseURL := cfg.PayscribeBaseURL
		if baseURL == "" {
			baseURL = payscribeclient.SandboxBaseURL
			if cfg.PayscribeEnv == "production" {
				baseURL = payscribeclient.ProductionBaseURL
			}
		}
		issuer = payscribeclient.NewClient(baseURL, payscribeAPIKey)
	}

	// Initialize the FCM client for deposit push notifications.
	var push app.PushSender
	if strings.TrimSpace(cfg.FirebaseServiceAccount) != "" {
		fcmClient, fcmErr := fcmclient.NewClientFromServiceAccount([]byte(cfg.FirebaseServiceAccount))
		if fcmErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"fcm client init failed; push notifications disabled\" err=%v", fcmErr)
		} else {
			push = fcmClient
			log.Println("level=info component=bootstrap msg=\"fcm client initialized\"")
		}
	}

	// Redis backs the per-IP webhook rate limiter.
	var rateLimiter *app.RedisWebhookRateLimiter
	if cfg.WebhookRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; webhook rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; webhook rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; webhook rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					rateLimiter = app.NewRedisWebhookRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	depositService, err := app.NewService(
		repository,
		issuer,
		publisher,
		push,
		cfg.PayscribeSecretKey,
		cfg.DepositEventExchange,
	)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"service init failed\" err=%v", err)
	}

	// Start the virtual-account expiry scheduler.
	slogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobs := app.NewJobs(repository, publisher, slogger, cfg.DepositEventExchange)
	scheduler := app.NewScheduler(jobs, slogger, cfg.ExpiryJobSchedule)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	handlers := api.NewDepositHandlers(depositService)
	router := api.NewRouter(handlers, api.RouterConfig{
		InternalAPIKey:     cfg.InternalAPIKey,
		AdminJWKSURL:       cfg.AdminJWKSURL,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		WebhookRatePerMin:  cfg.WebhookRateLimitPerMinute,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
