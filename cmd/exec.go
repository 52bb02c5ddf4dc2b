package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"gate-system/config"
	"gate-system/internal/clock"
	"gate-system/internal/handlers"
	"gate-system/internal/services/alert"
	"gate-system/internal/services/audit"
	"gate-system/internal/services/gate"
	"gate-system/internal/services/ledger"
	"gate-system/internal/services/replay"
	"gate-system/internal/services/report"
	"gate-system/internal/services/secret"
	"gate-system/internal/services/token"
	"gate-system/internal/store"
	"gate-system/monitoring"
	"gate-system/security"
	"gate-system/utils"
)

const shutdownTimeout = 10 * time.Second

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewSystem()

	storeBreaker := utils.NewCircuitBreaker("gate-store", utils.WithSuccessFilter(store.NotFoundIsSuccess))
	monitor := monitoring.NewMonitor(redisClient, storeBreaker)

	// Secrets
	params, err := newParameterStore(cfg, redisClient)
	if err != nil {
		return err
	}
	mode := secret.ModeProduction
	if cfg.IsDevelopment() {
		mode = secret.ModeDevelopment
	}
	provider := secret.NewProvider(params, secret.ProviderConfig{
		Name:          cfg.JWTSecretParam,
		CacheTTL:      cfg.SecretCacheTTL,
		GraceWindow:   cfg.SecretGraceWindow,
		Mode:          mode,
		DevFallback:   cfg.JWTDevSecret,
		MinRefreshAge: cfg.SecretMinRefreshAge,
	}, clk, monitor)
	rotator := secret.NewRotator(params, cfg.JWTSecretParam, provider, clk)
	if err := ensureSecret(ctx, rotator); err != nil {
		return err
	}
	codec := token.NewCodec(provider, clk)

	// Replay records and the KV ledger share the breaker-guarded Redis store.
	kv := store.WithBreaker(store.NewRedisStore(redisClient, "gate:"), storeBreaker)
	guard, err := replay.NewGuard(kv, cfg.ReplayTTL, clk)
	if err != nil {
		return err
	}

	// Alerts
	channel, closeChannel, err := newAlertChannel(cfg)
	if err != nil {
		return err
	}
	notifier := alert.NewNotifier(channel, cfg.SideEffectTimeout, monitor)

	var kvLedger *ledger.KVLedger
	if cfg.LedgerBackend == "redis" {
		kvLedger = ledger.NewKVLedger(kv)
		ledger.NewSyncer(kvLedger).Bind(app)
	}

	app.RootCmd.AddCommand(
		newIssueTicketCommand(codec),
		newIssueDeviceTokenCommand(codec),
		newRotateSecretCommand(rotator),
		newListSalesCommand(func() ledger.MatchLister {
			if kvLedger != nil {
				return kvLedger
			}
			return ledger.NewDBLedger(app.DB())
		}),
	)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	if cfg.SecretRotationInterval > 0 {
		go rotator.RunSchedule(ctx, cfg.SecretRotationInterval)
	}
	if cfg.EnableMetrics {
		go monitor.Run(ctx, 30*time.Second)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		var sales ledger.Ledger = ledger.NewDBLedger(app.DB())
		if kvLedger != nil {
			n, err := ledger.NewSyncer(kvLedger).SyncAll(ctx, app.DB())
			if err != nil {
				return err
			}
			log.Printf("Synced %d sales to Redis", n)
			sales = kvLedger
		}

		// Audit entries that cannot reach the database still land in the log.
		auditSink := audit.NewFallbackSink(audit.NewDBSink(app.DB()), audit.NewLogSink(nil))
		recorder := audit.NewRecorder(auditSink, cfg.SideEffectTimeout, clk, monitor)
		verifier := gate.NewVerifier(codec, sales, guard, recorder, notifier, clk, monitor, gate.Config{
			StoreTimeout: cfg.StoreTimeout,
		})

		limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)
		reports := report.NewService(codec, report.NewDBSink(app.DB()), clk, cfg.SideEffectTimeout)
		router := handlers.NewRouter(
			handlers.NewGateHandler(verifier, redisClient),
			handlers.NewReportHandler(reports),
			limiter.GateRateLimit(),
		)

		// Gate endpoints
		e.Router.Any("/api/v1/gate/{path...}", apis.WrapStdHandler(router))

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		log.Println("Gate routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		log.Println("Shutdown signal received, cleaning up...")
		cancel()

		waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer waitCancel()
		if err := notifier.Wait(waitCtx); err != nil {
			slog.Warn("Pending security alerts dropped on shutdown", "error", err)
		}
		if err := closeChannel(); err != nil {
			slog.Warn("Failed to close alert channel", "error", err)
		}
		return e.Next()
	})

	// Start server
	return app.Start()
}

// newParameterStore keeps secrets encrypted in Redis. Without a key, which
// config only allows in development, secrets live in process memory.
func newParameterStore(cfg *config.Config, redisClient redis.Cmdable) (secret.ParameterStore, error) {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		slog.Warn("SECRET_ENCRYPTION_KEY not set, using in-memory secret store")
		return secret.NewMemoryParameterStore(), nil
	}
	return secret.NewRedisParameterStore(redisClient, key)
}

func newAlertChannel(cfg *config.Config) (alert.Channel, func() error, error) {
	noop := func() error { return nil }

	switch cfg.AlertTransport {
	case "pubnub":
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		return alert.NewPubNubChannel(pubnub.NewPubNub(pnConfig), cfg.PubNubAlertChannel), noop, nil
	case "amqp":
		ch, err := alert.DialAMQP(cfg.AMQPURL, cfg.AMQPAlertQueue)
		if err != nil {
			return nil, nil, err
		}
		return ch, ch.Close, nil
	case "log":
		return alert.LogChannel{}, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown alert transport %q", cfg.AlertTransport)
	}
}

// ensureSecret creates the first signing secret on a fresh deployment.
func ensureSecret(ctx context.Context, rotator *secret.Rotator) error {
	state, err := rotator.State(ctx)
	if err != nil {
		return fmt.Errorf("read secret state: %w", err)
	}
	if state != secret.StateUninitialized {
		return nil
	}
	if _, err := rotator.Rotate(ctx); err != nil {
		return fmt.Errorf("initialize secret: %w", err)
	}
	log.Println("Initialized JWT signing secret")
	return nil
}
