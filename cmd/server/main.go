package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	appconfig "github.com/dahshury/clinic-whatsapp-bot/internal/config"
	"github.com/dahshury/clinic-whatsapp-bot/internal/conversation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/customer"
	"github.com/dahshury/clinic-whatsapp-bot/internal/httpapi"
	"github.com/dahshury/clinic-whatsapp-bot/internal/llm"
	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/queue"
	"github.com/dahshury/clinic-whatsapp-bot/internal/realtime"
	"github.com/dahshury/clinic-whatsapp-bot/internal/reservation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/scheduler"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/internal/tools"
	"github.com/dahshury/clinic-whatsapp-bot/internal/whatsapp"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-whatsapp-bot",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "tz", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	// Storage
	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.ApplySchema(ctx, db); err != nil {
		logger.Error("schema apply failed", "error", err)
		os.Exit(1)
	}

	reservations := store.NewReservationRepo(db)
	customers := store.NewCustomerRepo(db)
	conversations := store.NewConversationRepo(db)
	queueRepo := store.NewQueueRepo(db)
	vacations := store.NewVacationRepo(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, notification history disabled", "addr", cfg.RedisAddr, "error", err)
	}

	seedVacations(ctx, cfg, vacations, loc, logger.Named("vacations"))

	// Domain services
	schedule := calendar.DefaultSchedule(loc)
	registry := customer.NewRegistry(customers)
	convLog := conversation.New(conversations, loc)

	hub := realtime.NewHub(nil, realtime.NewHistory(rdb), m, logger.Named("realtime"))

	engine := reservation.NewEngine(reservations, vacations, registry, schedule, m, logger.Named("reservation"),
		reservation.WithNotifier(hub),
		reservation.WithCapacities(cfg.AgentMaxReservations, cfg.SecretaryMaxReservations),
	)

	wa := whatsapp.New(whatsapp.Config{
		Version:       cfg.GraphVersion,
		AccessToken:   cfg.AccessToken,
		PhoneNumberID: cfg.PhoneNumberID,
	}, m, logger.Named("whatsapp"))

	sysCache := realtime.NewSystemCache(rdb)
	backend := realtime.NewOperatorBackend(
		engine, registry, convLog, vacations, reservations, queueRepo, wa, loc)
	backend.SetSystemCache(sysCache)
	hub.SetBackend(backend)

	// LLM assistant
	svc := tools.Services{
		Engine:    engine,
		Customers: registry,
		Sender:    wa,
		Schedule:  schedule,
		Business: tools.BusinessLocation{
			Latitude:  cfg.BusinessLatitude,
			Longitude: cfg.BusinessLongitude,
			Name:      cfg.BusinessName,
			Address:   cfg.BusinessAddress,
		},
	}
	catalog := tools.Default(svc, m, logger.Named("tools"))

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		logger.Error("llm provider init failed", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}
	retry := llm.DefaultRetryPolicy(cfg.LLMRetryBudget, m, logger.Named("retry"))
	driver := llm.NewDriver(provider, catalog, convLog, retry, loc,
		llm.DefaultSystemPrompt(cfg.BusinessName, cfg.Timezone),
		m, logger.Named("llm"),
		llm.WithMaxTurns(cfg.LLMMaxTurns),
	)

	// Inbound queue workers
	processor := queue.NewMessageProcessor(driver, wa, registry, m, logger.Named("processor"))
	pool := queue.NewPool(queueRepo, processor, queue.Config{
		Workers:      cfg.QueueWorkers,
		PollInterval: cfg.QueuePollInterval,
		StaleTTL:     cfg.QueueClaimTTL,
		MaxAttempts:  cfg.QueueMaxAttempts,
	}, m, logger.Named("queue"))
	pool.Start(ctx)

	// Recurring jobs; only one process per host runs them.
	sched := scheduler.New(scheduler.Config{
		LockPath:     cfg.SchedulerLockPath,
		Location:     loc,
		ReminderHour: cfg.ReminderHour,
	}, reservations, wa, convLog, m, logger.Named("scheduler"))
	sched.SetSampleSink(sysCache)
	schedulerRunning := true
	if err := sched.Start(ctx); err != nil {
		schedulerRunning = false
		if errors.Is(err, scheduler.ErrNotLeader) {
			logger.Info("scheduler already running on this host, continuing without one")
		} else {
			logger.Error("scheduler start failed", "error", err)
			os.Exit(1)
		}
	}

	go hub.Run(ctx)

	// HTTP surface
	operator := httpapi.NewOperatorHandler(
		engine, registry, convLog, vacations, reservations, queueRepo, loc, logger.Named("api"))
	webhook := httpapi.NewWebhookHandler(cfg.AppSecret, cfg.VerifyToken, queueRepo, m, logger.Named("webhook"))

	router := httpapi.New(&httpapi.Config{
		Logger:             logger.Named("http"),
		Metrics:            m,
		Webhook:            webhook,
		Operator:           operator,
		WebSocket:          hub.ServeWS,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: corsOrigins(cfg.AppURL, cfg.Env),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	pool.Stop()
	if schedulerRunning {
		sched.Stop()
	}
	logger.Info("server stopped")
}

func buildProvider(ctx context.Context, cfg *appconfig.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "gemini":
		return llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	}
}

func corsOrigins(appURL, env string) []string {
	var origins []string
	if env == "development" {
		origins = append(origins,
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		)
	}
	for _, o := range strings.Split(appURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// seedVacations loads the env-configured vacation periods into the database
// on first boot. Pairs of VACATION_START_DATES and VACATION_DURATIONS define
// each period; existing rows win.
func seedVacations(ctx context.Context, cfg *appconfig.Config, repo *store.VacationRepo, loc *time.Location, logger *logging.Logger) {
	if strings.TrimSpace(cfg.VacationStartDates) == "" {
		return
	}
	existing, err := repo.List(ctx)
	if err != nil {
		logger.Warn("vacation list failed, skipping seed", "error", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	starts := strings.Split(cfg.VacationStartDates, ",")
	durations := strings.Split(cfg.VacationDurations, ",")
	for i, raw := range starts {
		start, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), loc)
		if err != nil {
			logger.Warn("bad vacation start date", "value", raw, "error", err)
			continue
		}
		days := 1
		if i < len(durations) {
			if n, err := strconv.Atoi(strings.TrimSpace(durations[i])); err == nil && n > 0 {
				days = n
			}
		}
		end := start.AddDate(0, 0, days-1)
		if _, err := repo.Create(ctx, start, end, cfg.VacationMessage); err != nil {
			logger.Warn("vacation seed failed", "start", raw, "error", err)
			continue
		}
		logger.Info("vacation seeded",
			"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))
	}
}
