// cmd/portal-server/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"applicant-portal/internal/application/cache"
	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/application/notify"
	"applicant-portal/internal/application/service"
	"applicant-portal/internal/application/store"
	"applicant-portal/internal/common/auth"
	"applicant-portal/internal/common/aws"
	"applicant-portal/internal/common/camunda"
	"applicant-portal/internal/common/config"
	"applicant-portal/internal/common/database"
	apperrors "applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/common/observability"
	"applicant-portal/internal/transport/httpapi"
	recorddecision "applicant-portal/internal/workers/review/record-decision"
	"applicant-portal/pkg/catalog"
)

const serviceName = "portal-server"

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: serviceName,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting portal server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("driver", cfg.Database.Driver),
	)

	obs := observability.New(serviceName)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init database with retry ---
	var db *sql.DB
	err = retryWithBackoff(func() error {
		var err error
		if db == nil {
			if db, err = database.Open(cfg.Database); err != nil {
				return err
			}
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := database.Ping(pingCtx, db); err != nil {
			return apperrors.NewDatabaseConnectionFailedError(err)
		}
		return nil
	}, cfg.Database.ConnectRetries, 2*time.Second, zapLog, "Database connection")
	if err != nil {
		zapLog.Fatal("database unavailable after retries", zap.Error(err))
	}
	defer db.Close()
	zapLog.Info("Database connected successfully")

	dialect, err := store.DialectFor(cfg.Database.Driver)
	if err != nil {
		zapLog.Fatal("unsupported dialect", zap.Error(err))
	}
	st := store.New(db, dialect, log)
	if cfg.Database.MigrateOnStart {
		if err := st.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Schema applied", zap.String("dialect", dialect.Name))
	}

	// --- Catalog and gate ---
	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		if cat, err = catalog.Load(cfg.Catalog.Path); err != nil {
			zapLog.Fatal("catalog load failed", zap.String("path", cfg.Catalog.Path), zap.Error(err))
		}
	}
	if cfg.Catalog.ConsentField != "" {
		cat.ConsentField = cfg.Catalog.ConsentField
	}
	g, err := gate.New(cat)
	if err != nil {
		zapLog.Fatal("invalid catalog", zap.Error(err))
	}

	opts := []service.Option{service.WithObservability(obs)}

	// --- Init Redis cache with retry ---
	if cfg.Cache.Enabled {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			return err
		}, 5, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			// the cache is optional; reads fall through to the store
			zapLog.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer redis.Close()
			opts = append(opts, service.WithCache(
				cache.New(redis, config.GetDuration(cfg.Cache.TTL), cfg.Cache.KeyPrefix, log)))
			zapLog.Info("Redis cache enabled")
		}
	}

	// --- Init Zeebe client with retry ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: cfg.Camunda.PlainText,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- Notification channels ---
	var channels []notify.Channel
	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		channels = append(channels, notify.NewSESMailer(sesClient,
			cfg.Integrations.AWS.SES.FromEmail, cfg.Integrations.AWS.SES.EmailField))
	}
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		channels = append(channels, notify.NewSNSPublisher(snsClient, cfg.Integrations.AWS.SNS.TopicARN))
	}
	if zeebe != nil {
		channels = append(channels, notify.NewZeebePublisher(zeebe, config.GetDuration(cfg.Camunda.MessageTTL)))
	}
	if len(channels) > 0 {
		dispatcher := notify.NewDispatcher(log, 5*time.Second, channels...)
		opts = append(opts, service.WithNotifier(dispatcher))
		zapLog.Info("Notifications enabled", zap.Strings("channels", dispatcher.Channels()))
	}

	svc := service.New(st, g, log, opts...)

	// --- Review worker ---
	var reviewWorker *camunda.CamundaWorker
	if zeebe != nil {
		wcfg := config.GetWorkerConfig(cfg, "record-decision")
		handler := recorddecision.NewHandler(recorddecision.LoadConfig(wcfg), svc, log)
		reviewWorker = camunda.StartWorker(zeebe.GetClient(), recorddecision.TaskType, wcfg, handler.Handle, log)
	}

	// --- Identity ---
	var identity auth.IdentityProvider
	credentialHeader := ""
	switch cfg.Auth.Mode {
	case config.AuthModeHeader:
		identity = auth.HeaderIdentity{}
		credentialHeader = cfg.Auth.Header
		zapLog.Warn("header auth mode trusts the client; do not use in production",
			zap.String("header", credentialHeader))
	default:
		kc := cfg.Auth.Keycloak
		identity = auth.NewKeycloakIdentity(auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret))
	}

	// --- HTTP server ---
	router := httpapi.NewRouter(svc, httpapi.Config{
		Identity:         identity,
		CredentialHeader: credentialHeader,
		Version:          cfg.App.Version,
		Ready: func(ctx context.Context) error {
			if err := st.Ping(ctx); err != nil {
				return err
			}
			if zeebe != nil {
				return zeebe.HealthCheck(ctx)
			}
			return nil
		},
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zapLog.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		zapLog.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	reviewWorker.Stop()

	zapLog.Info("Portal server stopped gracefully")
}
