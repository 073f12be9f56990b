package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subflow/modules/billing"
	"github.com/dmitrymomot/subflow/pkg/config"
	"github.com/dmitrymomot/subflow/pkg/email"
	"github.com/dmitrymomot/subflow/pkg/httpserver"
	"github.com/dmitrymomot/subflow/pkg/joblock"
	"github.com/dmitrymomot/subflow/pkg/logger"
	"github.com/dmitrymomot/subflow/pkg/payment"
	"github.com/dmitrymomot/subflow/pkg/pg"
	redisconn "github.com/dmitrymomot/subflow/pkg/redis"
	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/checkout"
	"github.com/dmitrymomot/subflow/svc/notifier"
	"github.com/dmitrymomot/subflow/svc/scheduler"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

type appConfig struct {
	AppName     string `env:"APP_NAME" envDefault:"subflow"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	// AdminAPIToken guards the /billing/admin subtree. Admin routes are not
	// mounted when it is empty.
	AdminAPIToken string `env:"ADMIN_API_TOKEN"`
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, appCfg.AppName))
	logger.SetAsDefault(log)

	if err := run(appCfg, log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(appCfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgCfg        pg.Config
		redisCfg     redisconn.Config
		emailCfg     email.Config
		paymentCfg   payment.Config
		schedulerCfg scheduler.Config
		serverCfg    httpserver.Config
	)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&emailCfg)
	config.MustLoad(&paymentCfg)
	config.MustLoad(&schedulerCfg)
	config.MustLoad(&serverCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := redisconn.Connect(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	locker := joblock.New(redisClient, appCfg.AppName+":lock")

	sender, err := newEmailSender(emailCfg, log)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	notify := notifier.NewEmailNotifier(sender)

	catalogStore := catalog.NewPGStore(pool)
	subStore := subscription.NewPGStore(pool)
	lifecycle := subscription.NewLifecycle(subStore)
	gateway := payment.NewClient(paymentCfg)
	if !gateway.IsConfigured() {
		log.Warn("payment gateway credentials missing, checkout is disabled")
	}

	checkoutSvc := checkout.NewService(catalogStore, lifecycle, gateway, notify,
		checkout.WithLocker(locker),
		checkout.WithLogger(log),
	)

	jobs := scheduler.NewJobs(lifecycle, catalogStore, notify, schedulerCfg, log)
	sched, err := scheduler.New(jobs, schedulerCfg,
		scheduler.WithLocker(locker),
		scheduler.WithLogger(log),
	)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/health", httpserver.HealthCheckHandler(log,
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	))

	router.Mount("/billing", billing.Router(billing.RouterOptions{
		Checkout:      checkoutSvc,
		Catalog:       catalogStore,
		Subscriptions: lifecycle,
		CurrentUser:   trustedHeaderUser,
		AdminGuard:    adminTokenGuard(appCfg.AdminAPIToken),
		Logger:        log,
	}))

	return httpserver.New(serverCfg, log).Run(ctx, router)
}

// newEmailSender picks postmark when a server token is configured, and the
// file-based dev sender otherwise.
func newEmailSender(cfg email.Config, log *slog.Logger) (email.EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		log.Warn("postmark token missing, writing mail to disk", slog.String("dir", cfg.DevMailDir))
		return email.NewDevSender(cfg.DevMailDir), nil
	}
	return email.NewPostmarkClient(cfg)
}

// trustedHeaderUser resolves the authenticated user from the X-User-ID header
// set by the authenticating reverse proxy in front of this service.
func trustedHeaderUser(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// adminTokenGuard requires the configured bearer token on admin routes.
// Returns nil when no token is configured so the admin subtree stays
// unmounted.
func adminTokenGuard(token string) func(http.Handler) http.Handler {
	if token == "" {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			want := "Bearer " + token
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
