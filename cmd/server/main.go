package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"clinic/internal/api"
	"clinic/internal/attendance"
	"clinic/internal/booking"
	"clinic/internal/cache"
	"clinic/internal/clock"
	"clinic/internal/config"
	"clinic/internal/db"
	"clinic/internal/events"
	"clinic/internal/metrics"
	"clinic/internal/notify"
	"clinic/internal/slots"
	"clinic/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		tokenSub   string
		tokenRole  string
		tokenTTL   time.Duration
	)
	flagSet := pflag.NewFlagSet("clinic", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", envOr("CLINIC_CONFIG_PATH", config.DefaultPath), "path to the YAML config")
	flagSet.StringVar(&tokenSub, "issue-token", "", "print a signed access token for this subject and exit")
	flagSet.StringVar(&tokenRole, "role", string(api.RolePatient), "role of the issued token")
	flagSet.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the issued token")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if tokenSub != "" {
		tok, err := api.NewToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, tokenSub, api.Role(tokenRole), tokenTTL, time.Now())
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(tok)
		return nil
	}

	logger := newLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	clk := clock.Real()
	allocator := slots.NewAllocator(database, clk, &logger)

	ready := map[string]api.Pinger{"database": database.PingContext}
	var locker sweeper.Locker
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		allocator.UseCache(cache.NewSlotCache(rdb, cfg.SlotCacheTTL(), &logger))
		locker = cache.NewLocker(rdb)
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Warn().Msg("Redis not configured, availability cache and sweep lock disabled")
	}

	bus := events.NewEventBus()
	notifier, err := newNotifier(cfg, &logger)
	if err != nil {
		return err
	}
	notify.NewDispatcher(notifier, 10*time.Second, &logger).Register(bus)

	policy := attendance.Policy{
		CheckInGrace:  cfg.CheckInGrace(),
		CheckOutGrace: cfg.CheckOutGrace(),
		AbsentGrace:   cfg.AbsentGrace(),
	}
	bookings := booking.NewService(database, allocator, bus, booking.Policy{CancelThreshold: cfg.CancelThreshold()}, clk, &logger)
	records := attendance.NewService(database, policy, clk, &logger)

	sched, err := sweeper.NewScheduler(sweeper.SchedulerConfig{
		Timezone:      cfg.SweeperTimezone(),
		DailyHour:     cfg.Sweeper.DailyHour,
		DailyMinute:   cfg.Sweeper.DailyMinute,
		CheckInterval: cfg.SweeperCheckInterval(),
		LockTTL:       cfg.SweeperLockTTL(),
	}, sweeper.New(database, policy, clk, &logger), locker, clk, &logger)
	if err != nil {
		return fmt.Errorf("create sweeper: %w", err)
	}

	server := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		JWTSecret:    cfg.Auth.JWTSecret,
		Issuer:       cfg.Auth.Issuer,
		RateRPS:      cfg.RateLimitRPS(),
		RateBurst:    cfg.RateLimitBurst(),
	}, api.Deps{
		Schedules:  allocator,
		Bookings:   bookings,
		Attendance: records,
		Sweeper:    sched,
		Ready:      ready,
	}, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error {
		return serve(ctx, fmt.Sprintf(":%d", cfg.HealthCheckPort()), server.HealthRoutes(), "health", &logger)
	})

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return serve(ctx, fmt.Sprintf(":%d", cfg.PrometheusPort()), mux, "metrics", &logger)
		})
	}

	if cfg.Sweeper.Enabled {
		g.Go(func() error { return sched.Start(ctx) })
	}

	backups := db.NewBackupService(database, db.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Dir:           cfg.BackupPath(),
		Interval:      cfg.BackupInterval(),
		RetentionDays: cfg.BackupRetentionDays(),
	}, &logger)
	g.Go(func() error {
		backups.Start(ctx)
		return nil
	})

	logger.Info().Str("addr", cfg.Server.Addr).Msg("Clinic scheduling service started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Clinic scheduling service stopped")
	return nil
}

func newLogger(level, format string, out io.Writer) zerolog.Logger {
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func newNotifier(cfg *config.Config, logger *zerolog.Logger) (notify.Notifier, error) {
	if cfg.Telegram.BotToken == "" {
		return notify.NewLogNotifier(logger), nil
	}
	bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Int64("chat_id", cfg.Telegram.ChatID).Msg("Telegram notifications enabled")
	return notify.NewTelegramNotifier(bot, cfg.Telegram.ChatID, cfg.TelegramRate(), 1), nil
}

func serve(ctx context.Context, addr string, h http.Handler, name string, logger *zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Str("addr", addr).Msgf("%s server listening", name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
