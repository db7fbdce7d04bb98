package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/app"
	"ridehail/internal/auth"
	"ridehail/internal/broker"
	"ridehail/internal/config"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
	internalRedis "ridehail/internal/redis"
	"ridehail/internal/relay"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// New Relic first so the database and Redis clients can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	stores, closeStores, err := openStores(ctx, cfg, nrApp, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	source, publisher, closeRelay, err := openRelay(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeRelay()

	server := wireServer(cfg, stores, redisClient, source, publisher, nrApp, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "db_driver", cfg.Database.Driver, "feed_source", cfg.Feed.Source)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

// repositories groups the repository implementations of one backend.
type repositories struct {
	rides    repository.RideRepository
	drivers  repository.DriverRepository
	vehicles repository.VehicleRepository
	users    repository.UserRepository
	ratings  repository.RatingRepository
}

func openStores(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *slog.Logger) (repositories, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return repositories{
			rides:    store.Rides(),
			drivers:  store.Drivers(),
			vehicles: store.Vehicles(),
			users:    store.Users(),
			ratings:  store.Ratings(),
		}, func() {}, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return repositories{}, nil, err
	}
	logger.Info("connected to postgres", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	if cfg.Database.MigrateOnBoot {
		if err := app.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return repositories{}, nil, err
		}
	}

	return postgresRepositories(db), func() { _ = db.Close() }, nil
}

func postgresRepositories(db *sql.DB) repositories {
	return repositories{
		rides:    postgres.NewRideRepository(db),
		drivers:  postgres.NewDriverRepository(db),
		vehicles: postgres.NewVehicleRepository(db),
		users:    postgres.NewUserRepository(db),
		ratings:  postgres.NewRatingRepository(db),
	}
}

// openRelay builds the event source for feed clients and the publisher the
// services announce changes to. With the postgres source the trigger already
// emits every change, so services only publish to the broker.
func openRelay(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) (relay.Source, relay.Publisher, func(), error) {
	var (
		source     relay.Source
		publishers relay.MultiPublisher
		closers    []func()
	)

	switch cfg.Feed.Source {
	case "redis":
		feed := internalRedis.NewFeed(redisClient, cfg.Feed.RedisChannel, logger)
		source = feed
		publishers = append(publishers, feed)
	case "postgres":
		source = postgres.NewChangeFeed(cfg.Database.DSN(), cfg.Feed.PingInterval, logger)
	default:
		hub := relay.NewHub(0)
		source = hub
		publishers = append(publishers, hub)
	}

	if cfg.AMQP.Enabled {
		pub, err := broker.Dial(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		publishers = append(publishers, pub)
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("failed to close rabbitmq publisher", "error", err)
			}
		})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return source, publishers, closeAll, nil
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	cfg *config.Config,
	stores repositories,
	redisClient *redis.Client,
	source relay.Source,
	publisher relay.Publisher,
	nrApp *newrelic.Application,
	logger *slog.Logger,
) *http.Server {
	// Interfaces stay nil without Redis.
	var (
		rideCache   internalRedis.RideCacheInterface
		driverCache internalRedis.DriverCacheInterface
	)
	if redisClient != nil {
		cacheStore := internalRedis.NewCacheStore(redisClient)
		rideCache, driverCache = cacheStore, cacheStore
	}

	tokens := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	estimator := service.NewFlatRateEstimator(service.FlatRateConfig{
		BaseFare:      cfg.Fare.BaseFare,
		PerKmRate:     cfg.Fare.PerKmRate,
		MinDistanceKm: cfg.Fare.MinDistanceKm,
		MaxDistanceKm: cfg.Fare.MaxDistanceKm,
	})

	notificationService := service.NewNotificationService(publisher, logger)
	driverService := service.NewDriverService(stores.drivers, stores.vehicles, stores.users, driverCache, logger)
	lifecycleService := service.NewLifecycleService(stores.rides, driverService, estimator, rideCache, notificationService, logger)
	ratingService := service.NewRatingService(stores.rides, stores.ratings, driverService)
	statsService := service.NewStatsService(stores.rides, stores.drivers, stores.users)
	userService := service.NewUserService(stores.users, tokens, cfg.Auth.AllowAdminSignup, logger)

	router := app.NewRouter(app.RouterDeps{
		UserHandler:      handler.NewUserHandler(userService),
		RideHandler:      handler.NewRideHandler(lifecycleService, ratingService, userService),
		DriverHandler:    handler.NewDriverHandler(driverService, statsService),
		DashboardHandler: handler.NewDashboardHandler(statsService),
		FeedHandler: handler.NewFeedHandler(source, middleware.OriginChecker(cfg.Server.AllowedOrigins), logger,
			relay.WithBackoff(cfg.Feed.InitialBackoff, cfg.Feed.MaxBackoff)),
		Tokens:         tokens,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	// Feed connections reset their own deadlines after the upgrade.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
