package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/config"
	"github.com/meinhoongagan/availability-engine/controllers"
	"github.com/meinhoongagan/availability-engine/cron"
	"github.com/meinhoongagan/availability-engine/db"
	"github.com/meinhoongagan/availability-engine/middleware"
	"github.com/meinhoongagan/availability-engine/realtime"
	"github.com/meinhoongagan/availability-engine/redis"
	"github.com/meinhoongagan/availability-engine/repository"
	"github.com/meinhoongagan/availability-engine/routes"
	"github.com/meinhoongagan/availability-engine/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.EnvFileLoaded {
		logger.Info("no .env file found, using process environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}

	profiles := repository.NewAvailabilityRepository(conn)
	appointments := repository.NewAppointmentRepository(conn)
	users := repository.NewUserRepository(conn)

	hubOpts := []realtime.HubOption{realtime.WithHubLogger(logger)}
	availOpts := []availability.Option{
		availability.WithLocation(cfg.Location),
		availability.WithLogger(logger),
	}
	if cfg.RedisAddr != "" {
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
		availOpts = append(availOpts, availability.WithCache(redis.NewProfileCache(client, cfg.ProfileCacheTTL)))
		hubOpts = append(hubOpts, realtime.WithBus(redis.NewBus(client, redis.DefaultChannel, logger)))
	}

	hub := realtime.NewHub(middleware.TokenParser(cfg.JWTSecret), hubOpts...)
	if statuses, err := profiles.AvailabilityStatuses(ctx); err != nil {
		logger.Warn("could not seed availability statuses", "error", err)
	} else {
		hub.SeedStatuses(statuses)
	}

	avail := availability.NewService(profiles, appointments, append(availOpts, availability.WithNotifier(hub))...)
	bookings := booking.NewService(appointments, avail, appointments, booking.NewMachine(nil),
		booking.WithNotifier(hub),
		booking.WithLocation(cfg.Location),
		booking.WithLogger(logger),
	)
	hub.SetInbound(realtime.NewRelay(hub, bookings, logger))

	schedOpts := []cron.Option{
		cron.WithLead(cfg.ReminderLead),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(logger),
	}
	if cfg.MailEnabled() {
		schedOpts = append(schedOpts, cron.WithMail(users, utils.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass)))
	}
	scheduler := cron.NewScheduler(appointments, bookings, hub, schedOpts...)
	if err := scheduler.Start(); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{AppName: "availability-engine", DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))
	handlers := controllers.NewHandlers(avail, bookings, users, cfg.JWTSecret, cfg.TokenTTL, controllers.WithLogger(logger))
	routes.Setup(app, handlers, cfg.JWTSecret)

	realtimeServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.RealtimePort),
		Handler:           hub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		if err := hub.Run(ctx); err != nil {
			errCh <- fmt.Errorf("realtime bus: %w", err)
		}
	}()
	go func() {
		logger.Info("realtime server listening", "port", cfg.RealtimePort)
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("realtime server: %w", err)
		}
	}()
	go func() {
		logger.Info("http server listening", "port", cfg.HTTPPort)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	<-scheduler.Stop().Done()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := realtimeServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime shutdown", "error", err)
	}
	hub.Close()
	return runErr
}
