package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medical-intake-agent/internal/agent"
	"medical-intake-agent/internal/config"
	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/intake"
	"medical-intake-agent/internal/platform/db"
	"medical-intake-agent/internal/platform/logging"
	"medical-intake-agent/internal/platform/telegram"
	"medical-intake-agent/internal/report"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "intake-server",
		Short:         "Medical intake routing and data-fusion server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		zerolog.New(os.Stderr).Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.IsDev(), cfg.LogLevel), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	for _, d := range []db.Direction{db.Up, db.Down} {
		direction := d
		cmd.AddCommand(&cobra.Command{
			Use:   string(direction),
			Short: "Migrate " + string(direction),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := loadConfig()
				if err != nil {
					return err
				}
				return db.Migrate(cfg.MigrationsDir, cfg.DatabaseURL, direction, logger)
			},
		})
	}
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// 1. Infrastructure
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Migrate(cfg.MigrationsDir, cfg.DatabaseURL, db.Up, logger); err != nil {
		return err
	}

	locker := consultation.NewMemoryLocker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		locker = consultation.NewRedisLocker(rdb, cfg.SessionLockTTL, cfg.AgentTimeout, logger)
		logger.Info().Msg("using redis session locks")
	}

	// 2. Clients
	var specialist consultation.SpecialistClient
	if cfg.GeminiAPIKey != "" {
		gen, err := agent.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		specialist = agent.NewSpecialistClient(gen, logger)
		logger.Info().Str("model", gen.Name()).Msg("specialist model configured")
	} else {
		specialist = agent.NewOfflineClient()
		logger.Warn().Msg("GEMINI_API_KEY is not set; running with the offline specialist")
	}

	var reportSvc consultation.ReportService
	if cfg.ReportsEnabled() {
		reportSvc = report.NewService(telegram.NewClient(cfg.TelegramBotToken), cfg.DoctorChatID, cfg.ReportFontPaths, logger)
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN or DOCTOR_CHAT_ID not set; clinician reports are disabled")
	}

	// 3. Services
	policy := intake.DefaultPolicy
	policy.MinHPILength = cfg.HPIMinLength

	repo := consultation.NewRepository(sqlDB, logger)
	svc, err := consultation.NewService(repo, specialist, reportSvc, locker, consultation.Options{
		Policy:        policy,
		AgentTimeout:  cfg.AgentTimeout,
		TurnCacheSize: cfg.TurnCacheSize,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	handler := consultation.NewHandler(svc, logger)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Idempotency-Key, X-Request-Id")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := sqlDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, handler)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
