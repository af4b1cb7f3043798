package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ReportFox/app/controllers"
	"github.com/ManuelReschke/ReportFox/app/repository"
	apiv1 "github.com/ManuelReschke/ReportFox/internal/api/v1"
	"github.com/ManuelReschke/ReportFox/internal/pkg/authflow"
	"github.com/ManuelReschke/ReportFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
	"github.com/ManuelReschke/ReportFox/internal/pkg/events"
	"github.com/ManuelReschke/ReportFox/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/ReportFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReportFox/internal/pkg/mail"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ReportFox/internal/pkg/oauth"
	"github.com/ManuelReschke/ReportFox/internal/pkg/payment"
	"github.com/ManuelReschke/ReportFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ReportFox/internal/pkg/router"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
	"github.com/ManuelReschke/ReportFox/internal/pkg/storage"
	"github.com/ManuelReschke/ReportFox/internal/pkg/tokenstore"
	"github.com/ManuelReschke/ReportFox/internal/pkg/watermark"
)

// uploads are capped at 100 MB by the admin controller; leave room for the
// multipart envelope
const bodyLimit = 105 << 20

func main() {
	if err := env.SetupEnvFile(); err != nil {
		log.Info("[Main] No .env file found, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	app, shutdown, err := NewApplication(cfg)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)); err != nil {
			log.Errorf("[Main] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Main] Graceful shutdown failed: %v", err)
	}
	shutdown()
}

// NewApplication wires every component from cfg. The returned func stops
// background workers and releases connections.
func NewApplication(cfg *config.Config) (*fiber.App, func(), error) {
	ctx := context.Background()

	db, err := database.SetupDatabase(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	rdb := cache.SetupCache(cfg.Cache)
	repos := repository.NewRepositories(db)

	// mail goes through the job queue when MAIL_ASYNC is set
	queue := jobqueue.NewQueue(rdb, cfg.Sweeper.MailWorkers)
	sender := mail.NewSender(cfg.Mail)
	var dispatcher mail.Dispatcher = mail.DirectDispatcher{Sender: sender}
	if cfg.Mail.Async {
		dispatcher = jobqueue.NewMailDispatcher(queue, sender)
	}
	notifier := mail.NewNotifier(dispatcher, cfg.App.FrontendURL, cfg.App.Currency)

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	sessions := session.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, session.NewRedisRevocations(rdb))
	auth := authflow.NewService(repos.User, tokenstore.NewRedisStore(rdb), sessions, notifier, authflow.TTLs{
		Verify: cfg.Auth.VerifyTTL,
		Login:  cfg.Auth.LoginTTL,
		Reset:  cfg.Auth.ResetTTL,
	})
	if cfg.HCaptcha.Secret != "" {
		auth.WithCaptcha(hcaptcha.NewVerifier(cfg.HCaptcha.Secret))
	}

	redirectCallback := cfg.Paystack.CallbackURL
	if redirectCallback == "" {
		redirectCallback = cfg.BaseURL() + "/api/client/paystack/callback"
	}
	payments := payment.NewServiceFromDB(db, payment.Gateways{
		Push:     payment.NewMpesaClient(cfg.Mpesa, cfg.Orders.GatewayTimeout, cfg.Orders.GatewayRPS),
		Card:     payment.NewCardClient(cfg.Card, cfg.Orders.GatewayTimeout, cfg.Orders.GatewayRPS),
		Redirect: payment.NewPaystackClient(cfg.Paystack, cfg.Orders.GatewayTimeout, cfg.Orders.GatewayRPS),
	}, notifier, publisher, payment.Options{
		Currency:            cfg.App.Currency,
		DefaultPhone:        cfg.Mpesa.DefaultPhone,
		RedirectCallbackURL: redirectCallback,
		CardReturnURL:       cfg.App.FrontendURL + "/client/orders",
		PaystackSecret:      cfg.Paystack.SecretKey,
	})
	ledger := entitlements.NewLedger(db)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.TempDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("temp dir: %w", err)
	}
	renderer := watermark.NewRenderer(store, cfg.Watermark, cfg.Storage.TempDir)
	views := counter.NewViewCounter(rdb, db)

	var tasks []jobqueue.Task
	if cfg.Sweeper.Enabled {
		tasks = jobqueue.SweepTasks(cfg.Sweeper, jobqueue.SweepDeps{
			Orders:     payments,
			Counters:   views,
			PendingTTL: cfg.Orders.PendingTTL,
			TempDir:    cfg.Storage.TempDir,
		})
	}
	manager := jobqueue.NewManager(queue, tasks...)
	manager.Start()

	oauth.Setup(cfg.OAuth, cfg.BaseURL(), rdb, !cfg.IsDev())

	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
		AppName:   "ReportFox",
	})
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if docPath, ok := findDoc(); ok {
		if _, err := apiv1.LoadSpec(ctx, docPath); err != nil {
			log.Warnf("[Main] OpenAPI document invalid, docs disabled: %v", err)
		} else {
			app.Use(swagger.New(swagger.Config{
				BasePath: "/docs/api/",
				FilePath: docPath,
				Path:     "v1",
			}))
		}
	}

	// ROUTER
	router.InstallRouter(app, router.Handlers{
		Auth:           controllers.NewAuthController(auth),
		OAuth:          controllers.NewOAuthController(auth, cfg.App.FrontendURL, oauth.Enabled(cfg.OAuth)),
		Client:         controllers.NewClientController(repos, payments, ledger),
		Viewer:         controllers.NewViewerController(repos.Report, ledger, renderer, views),
		Callbacks:      controllers.NewCallbackController(payments, cfg.Orders.WebhookDeadline),
		Admin:          controllers.NewAdminController(repos, store),
		Sessions:       sessions,
		Limiter:        ratelimit.New(ratelimit.NewRedisBackend(rdb)),
		LimiterStorage: cache.NewFiberStorage(rdb, cache.DatabaseLimiter),
		APIRateMax:     cfg.App.APIRateMax,
		MetricsUser:    cfg.App.MetricsUser,
		MetricsPass:    cfg.App.MetricsPass,
		AllowedOrigins: cfg.App.FrontendURL,
	})

	shutdown := func() {
		manager.Stop()
		if err := publisher.Close(); err != nil {
			log.Warnf("[Main] Closing event publisher: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Warnf("[Main] Closing cache: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return app, shutdown, nil
}

// findDoc looks for the OpenAPI document from the project root or from
// cmd/reportfox during development.
func findDoc() (string, bool) {
	for _, base := range []string{"./", "../../", "../../../"} {
		p := base + apiv1.DocPath
		if _, err := os.Stat(p); err == nil {
			return p, true
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("[Main] Checking %s: %v", p, err)
		}
	}
	log.Warn("[Main] OpenAPI document not found, docs disabled")
	return "", false
}
