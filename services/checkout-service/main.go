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

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/config"
	"github.com/ashendes/checkout-engine/internal/handlers"
	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/metrics"
	"github.com/ashendes/checkout-engine/internal/notify"
	"github.com/ashendes/checkout-engine/internal/patterns"
	"github.com/ashendes/checkout-engine/internal/session"
	"github.com/ashendes/checkout-engine/internal/store"
	"github.com/ashendes/checkout-engine/internal/store/memory"
	"github.com/ashendes/checkout-engine/internal/store/postgres"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const serviceName = "checkout-service"

// backend is what a storage implementation offers the service.
type backend interface {
	checkout.Repository
	store.Reader
	store.Seeder
}

func init() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
}

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Checkout Service stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	// Postgres keeps its stock across restarts, so only the memory store is seeded.
	if cfg.SeedCatalog && cfg.DatabaseURL == "" {
		catalog := store.SampleCatalog()
		if err := db.PutInventory(ctx, catalog...); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		for _, item := range catalog {
			metrics.InventoryLevel.WithLabelValues(item.ID).Set(float64(item.Quantity))
		}
		log.WithField("items", len(catalog)).Info("Sample catalog seeded")
	}

	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	notifier, circuit, closeNotifier, err := openNotifier(cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	orch := checkout.NewOrchestrator(db, notifier,
		checkout.WithReconciler(inventory.NewReconciler()),
		checkout.WithNotifyTimeout(cfg.NotifyTimeout),
	)

	router := gin.New()
	router.Use(gin.Recovery())

	// Add Prometheus middleware
	router.Use(metrics.PrometheusMiddleware(serviceName))
	router.Use(handlers.RequestLogger(log.StandardLogger()))

	handlers.New(orch, sessions, db, log.StandardLogger()).Register(router)

	if circuit != nil {
		router.GET("/checkout/circuit-status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"mail_circuit": gin.H{
					"name":  "Mail",
					"state": circuit.GetState(),
					"value": circuit.GetStateValue(),
				},
			})
		})
	}

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{
			"port":     cfg.Port,
			"notifier": cfg.Notifier,
			"postgres": cfg.DatabaseURL != "",
			"redis":    cfg.RedisURL != "",
		}).Info("Checkout Service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Checkout Service shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openBackend connects to Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise.
func openBackend(ctx context.Context, cfg config.Config) (backend, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return db, db.Close, nil
}

func openSessions(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, sessions are kept in memory")
		return session.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("Failed to close redis client")
		}
	}
	return session.NewRedisStore(rdb, cfg.SessionTTL), closeFn, nil
}

// openNotifier builds the confirmation channel. The returned breaker is nil
// unless the HTTP mailer is in use.
func openNotifier(cfg config.Config) (checkout.Notifier, *patterns.CircuitBreakerWrapper, func(), error) {
	switch cfg.Notifier {
	case config.NotifierHTTP:
		mailer := notify.NewHTTPMailer(cfg.MailServiceURL,
			patterns.NewCircuitBreaker("Mail", serviceName),
			patterns.NewBulkhead(10, "mail", serviceName),
		)
		log.WithField("mail_url", cfg.MailServiceURL).Info("Sending confirmations to mail service")
		return mailer, mailer.Circuit(), func() {}, nil

	case config.NotifierKafka:
		brokers := notify.ParseBrokers(cfg.KafkaBrokers)
		n := notify.NewKafkaNotifier(notify.NewKafkaWriter(brokers, cfg.KafkaTopic))
		log.WithFields(log.Fields{
			"brokers": brokers,
			"topic":   cfg.KafkaTopic,
		}).Info("Publishing confirmations to kafka")
		closeFn := func() {
			if err := n.Close(); err != nil {
				log.WithError(err).Warn("Failed to close kafka writer")
			}
		}
		return n, nil, closeFn, nil

	case config.NotifierAMQP:
		conn, ch, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect amqp: %w", err)
		}
		log.WithField("exchange", cfg.AMQPExchange).Info("Publishing confirmations to rabbitmq")
		closeFn := func() {
			_ = ch.Close()
			if err := conn.Close(); err != nil {
				log.WithError(err).Warn("Failed to close amqp connection")
			}
		}
		return notify.NewAMQPNotifier(ch, cfg.AMQPExchange), nil, closeFn, nil

	default:
		return notify.LogNotifier{}, nil, func() {}, nil
	}
}
