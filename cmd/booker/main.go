package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tennisScrapper/internal/booking"
	"tennisScrapper/internal/browser"
	"tennisScrapper/internal/calendar"
	"tennisScrapper/internal/logging"
	"tennisScrapper/internal/login"
	"tennisScrapper/internal/monitor"
	"tennisScrapper/internal/search"
	"tennisScrapper/internal/status"
	"tennisScrapper/internal/store"
	"tennisScrapper/pkg/config"
	"tennisScrapper/pkg/line"
)

type args struct {
	testMode   bool
	once       bool
	notifyTest bool
	noNotify   bool
}

func parseArgs(list []string) args {
	var a args
	for _, arg := range list {
		switch arg {
		case "test":
			a.testMode = true
		case "once":
			a.once = true
		case "notify-test":
			a.notifyTest = true
		case "--no-notify":
			a.noNotify = true
		}
	}
	return a
}

func main() {
	a := parseArgs(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	cfg.IsTestMode = a.testMode
	cfg.NoNotify = a.noNotify

	logger, flush, err := logging.New(cfg.Environment, cfg.LogDir)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, a, logger); err != nil {
		logger.Error("❌ Booker stopped", zap.Error(err))
		flush()
		os.Exit(1)
	}
	logger.Info("👋 Booker stopped")
}

func run(ctx context.Context, cfg *config.Config, a args, logger *zap.Logger) error {
	venues := config.GetTargets(cfg.IsTestMode)
	names := make([]string, len(venues))
	for i, v := range venues {
		names[i] = v.Name
	}
	if cfg.IsTestMode {
		logger.Info("Running in TEST mode - booking disabled", zap.Strings("venues", names))
	} else {
		logger.Info("Running in REAL mode", zap.Strings("venues", names))
	}

	if a.notifyTest {
		return line.NewClient(cfg.LineChannelToken, cfg.LineUserID, false, logger).TestNotification(ctx, names)
	}
	notifier := newNotifier(ctx, cfg, names, logger)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.Timeout = cfg.BrowserTimeout
	session := browser.NewSession(opts, logger)
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := session.Stop(); err != nil {
			logger.Warn("browser shutdown", zap.Error(err))
		}
	}()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		tokyo = time.FixedZone("JST", 9*60*60)
	}
	now := func() time.Time { return time.Now().In(tokyo) }

	handler := login.NewHandler(session, cfg.BaseURL, login.Credentials{UserID: cfg.UserID, Password: cfg.Password}, logger)
	handler.DebugDir = cfg.DebugDir
	booker := booking.NewBooker(logger, cfg.Headcount)
	booker.DebugDir = cfg.DebugDir
	nav := calendar.NewNavigator(logger, now)

	scanner := monitor.New(monitor.Deps{
		Login:    handler,
		Search:   search.NewDriver(logger),
		Calendar: calendar.NewDriver(nav, calendar.NewVerifier(logger), logger),
		Booker:   booker,
		Store:    st,
		Notifier: notifier,
	}, venues, logger)
	scanner.Policy = login.RetryPolicy{MaxAttempts: cfg.LoginMaxAttempts, Interval: cfg.LoginRetryInterval}
	scanner.BookingEnabled = !cfg.IsTestMode
	scanner.Interval = cfg.PollInterval

	tracker := status.NewTracker(status.DefaultHistory)
	scanner.OnStatus = tracker.Record
	if cfg.StatusAddr != "" {
		shutdown := serveStatus(cfg, tracker, logger)
		defer shutdown()
	}

	logger.Info("Booker started - press Ctrl+C to stop")
	if a.once {
		_, err := scanner.ScanAll(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return scanner.Run(ctx)
}

// newNotifier validates the LINE credentials and sends the startup message.
// Notifications are disabled when either fails.
func newNotifier(ctx context.Context, cfg *config.Config, venues []string, logger *zap.Logger) *line.Client {
	noNotify := cfg.NoNotify
	if noNotify {
		logger.Info("Notifications disabled (--no-notify flag is set)")
	}
	if cfg.LineChannelToken == "" || cfg.LineUserID == "" {
		logger.Warn("⚠️ LINE credentials not set properly, notifications will be disabled",
			zap.Bool("token_missing", cfg.LineChannelToken == ""),
			zap.Bool("user_id_missing", cfg.LineUserID == ""))
		noNotify = true
	} else {
		logger.Info("✓ LINE credentials found",
			zap.Int("token_length", len(cfg.LineChannelToken)),
			zap.Int("user_id_length", len(cfg.LineUserID)))
	}

	client := line.NewClient(cfg.LineChannelToken, cfg.LineUserID, noNotify, logger)
	if noNotify {
		return client
	}
	if err := client.TestNotification(ctx, venues); err != nil {
		logger.Warn("⚠️ Initial test notification failed, notifications will be disabled", zap.Error(err))
		return line.NewClient(cfg.LineChannelToken, cfg.LineUserID, true, logger)
	}
	logger.Info("✓ Initial test notification sent successfully")
	return client
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("Using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("🔄 Applying database migrations...")
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("✅ Migrations applied successfully")
	return store.NewPostgres(pool), pool.Close, nil
}

func serveStatus(cfg *config.Config, tracker *status.Tracker, logger *zap.Logger) func() {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           status.Handler(tracker),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("📡 Status endpoint listening", zap.String("addr", cfg.StatusAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status endpoint", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("status endpoint shutdown", zap.Error(err))
		}
	}
}
