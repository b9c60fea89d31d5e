package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/clock"
	"github.com/classgate/access-server/internal/config"
	"github.com/classgate/access-server/internal/database"
	"github.com/classgate/access-server/internal/display"
	"github.com/classgate/access-server/internal/engine"
	"github.com/classgate/access-server/internal/handler"
	"github.com/classgate/access-server/internal/metrics"
	"github.com/classgate/access-server/internal/middleware"
	"github.com/classgate/access-server/internal/reader"
	"github.com/classgate/access-server/internal/redis"
	"github.com/classgate/access-server/internal/repository"
	"github.com/classgate/access-server/internal/service"
	"github.com/classgate/access-server/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open record store")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.StoreDriver).Msg("record store ready")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var queueStore repository.CaptureQueueStore
	switch cfg.QueueDriver {
	case config.QueueDriverRedis:
		queueStore = repository.NewRedisQueueStore(redisClient.Client, cfg.DeviceID)
	default:
		queueStore, err = repository.NewFileQueueStore(filepath.Join(cfg.DataDir, "capture_queue.txt"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open capture queue file")
		}
	}

	enrollmentRepo := repository.NewEnrollmentRepository(store)
	courseRepo := repository.NewCourseRepository(store)
	scheduleRepo := repository.NewScheduleRepository(store)
	attendanceRepo := repository.NewAttendanceRepository(store)
	denialRepo := repository.NewDenialRepository(store)
	notificationRepo := repository.NewNotificationRepository(store)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	scheduleService := service.NewScheduleService(scheduleRepo, courseRepo, loc)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, courseRepo, attendanceRepo, notificationRepo)
	authService := service.NewAuthorizationService(
		enrollmentRepo, scheduleService,
		service.NewEffectWriter(attendanceRepo, denialRepo, notificationRepo),
	)
	captureQueue := service.NewCaptureQueue(queueStore)
	selfRegister := service.NewSelfRegisterManager(enrollmentService, cfg.SelfRegisterTTL())
	captureMachine := service.NewCaptureMachine(
		captureQueue, selfRegister, enrollmentRepo, cfg.Debounce(), cfg.WrongCardCooldown(),
	)

	feed := reader.NewFeed(config.ReaderBufferSize)

	eng := engine.New(engine.Deps{
		Clock:  clock.New(),
		Reader: feed,
		Display: display.Multi(
			display.NewLogNotifier(log.Logger),
			display.NewBrokerNotifier(broker, cfg.DeviceID),
		),
		Metrics:  metrics.New(prometheus.DefaultRegisterer),
		Auth:     authService,
		Enroller: enrollmentService,
		Schedule: scheduleService,
		Machine:  captureMachine,
		Queue:    captureQueue,
		SelfReg:  selfRegister,
		LinkFor:  cfg.RegisterURL,
	}, engine.Options{
		PollInterval:   cfg.PollInterval(),
		CommandTimeout: config.EngineCommandTimeout,
	})

	if err := eng.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	defer eng.Stop()

	readerCtx, stopReader := context.WithCancel(context.Background())
	defer stopReader()
	if cfg.ReaderDevice != "" {
		go runLineReader(readerCtx, cfg.ReaderDevice, feed)
	}

	var limiter middleware.Limiter = middleware.NewRateLimiter()
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	}
	registerLimit := middleware.NewRateLimitMiddleware(limiter, cfg.RegisterRateLimitPerMin, "register")
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.AdminPasswordHash, middleware.NewAuthFailureLimiter())
	deviceSignature := middleware.NewDeviceSignatureMiddleware(cfg.DeviceSecret)
	securityHeaders := middleware.SecurityHeaders(strings.HasPrefix(cfg.PublicBaseURL, "https://"))

	adminHandler := handler.NewAdminHandler(eng, scheduleService, enrollmentService, notificationRepo, adminAuth.Handler)
	registerHandler := handler.NewRegisterHandler(eng)
	deviceHandler := handler.NewDeviceHandler(eng)
	displayHandler := handler.NewDisplayEventsHandler(broker, cfg.DeviceID, eng.Status)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The display stream is long-lived and stays outside the request timeout.
	r.With(adminAuth.Handler).Get("/display/events", displayHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(middleware.BodyLimit(middleware.DefaultMaxBodySize))

		r.Route("/admin", func(r chi.Router) {
			r.Use(securityHeaders)
			r.Mount("/", adminHandler.Routes())
		})

		r.Route("/register", func(r chi.Router) {
			r.Use(securityHeaders)
			r.Use(registerLimit.Handler)
			r.Mount("/", registerHandler.Routes())
		})

		r.With(deviceSignature.Handler).Post("/device/scan", deviceHandler.Scan)
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("deviceId", cfg.DeviceID).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func openStore(cfg *config.Config) (repository.RecordStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewPostgresStore(db), nil
	case config.StoreDriverMemory:
		log.Warn().Msg("using in-memory record store: data is lost on restart")
		return repository.NewMemoryStore(), nil
	default:
		return repository.NewCSVStore(cfg.DataDir)
	}
}

// runLineReader feeds credentials from a keyboard-wedge or serial reader.
func runLineReader(ctx context.Context, path string, feed *reader.Feed) {
	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Str("device", path).Msg("failed to open reader device")
		return
	}
	defer f.Close()

	log.Info().Str("device", path).Msg("reader device opened")
	if err := reader.NewLineReader(f, feed).Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("device", path).Msg("reader device stopped")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
