package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/leadsched/libs/config"
	"github.com/md-rashed-zaman/leadsched/libs/db"
	"github.com/md-rashed-zaman/leadsched/libs/kafkax"
	otelx "github.com/md-rashed-zaman/leadsched/libs/otel"
	"github.com/md-rashed-zaman/leadsched/libs/runtime"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/app"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/leadstate"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/workflow"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool.Pool); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	store := storage.NewStore(pool)

	var locker leadstate.Locker = leadstate.NopLocker{}
	var redisReady runtime.Probe
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		locker = leadstate.NewRedisLocker(rdb, config.Duration("LEAD_LOCK_TTL", 5*time.Second))
		redisReady = runtime.Probe{Name: "redis", Check: func(c context.Context) error {
			return rdb.Ping(c).Err()
		}}
	} else {
		logger.Warn("redis not configured; per-lead locking degraded to storage CAS only")
	}

	trigger := notify.NewOutboxTrigger(store)
	machine := leadstate.NewMachine(store, locker, trigger, logger)
	calendarSvc := calendar.NewService(store, logger)
	ledgerSvc := ledger.NewService(store, machine, logger)
	flows := app.NewFlows(calendarSvc, ledgerSvc, machine, workflow.NewCoordinator(logger), logger)

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(store, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if brokers != "" {
		inboxRepo := inbox.NewRepository(pool)
		groupID := config.String("KAFKA_GROUP_ID", "scheduling-service")

		sender := notify.NewWhatsAppWebhookSender(
			config.String("WHATSAPP_WEBHOOK_URL", ""),
			config.String("WHATSAPP_WEBHOOK_TOKEN", ""),
		)
		dispatcher := notify.NewDispatcher(logger, inboxRepo, store, sender, notify.DispatcherConfig{
			Brokers: brokers,
			GroupID: groupID,
		})
		go dispatcher.Run(ctx)

		importConsumer := app.NewImportConsumer(logger, inboxRepo, flows, app.ImportConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
		})
		go importConsumer.Run(ctx)
	} else {
		logger.Warn("kafka not configured; notifications and import reconciliation disabled")
	}

	checks := []runtime.Probe{
		{Name: "postgres", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		checks = append(checks, runtime.Probe{Name: "kafka", Check: kafkax.Probe(brokers)})
	}
	if redisReady.Check != nil {
		checks = append(checks, redisReady)
	}

	mux := runtime.OpsMux(checks...)
	server := &http.Server{
		Addr:    ":" + port,
		Handler: otelhttp.NewHandler(mux, "ops"),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("scheduling-service listening", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
