package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/kitab-billing/internal/cache"
	"github.com/magabrotheeeer/kitab-billing/internal/config"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/migrations"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
	"github.com/magabrotheeeer/kitab-billing/internal/paymentprovider/stripeprovider"
	"github.com/magabrotheeeer/kitab-billing/internal/paymentprovider/waafipay"
	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
	"github.com/magabrotheeeer/kitab-billing/internal/services/webhook"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-приложение биллинга.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
}

// New подключает хранилище, кэш и брокер, создаёт клиентов провайдеров и сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "api.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// уведомления не обязательны: без брокера биллинг продолжает работать
	var notifier billing.Notifier
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		logger.Error("rabbitmq unavailable, notifications disabled", sl.Err(err))
	} else {
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			logger.Error("failed to set up rabbitmq channel, notifications disabled", sl.Err(err))
			conn.Close()
			conn = nil
		} else {
			notifier = rabbitmq.NewPublisher(ch)
		}
	}

	stripeClient := stripeprovider.New(stripeprovider.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		PriceID:       cfg.StripePlanID,
	})
	waafiClient := waafipay.NewClient(waafipay.Config{
		URL:         cfg.WaafiURL,
		MerchantUID: cfg.WaafiMerchantUID,
		APIUserID:   cfg.WaafiAPIUserID,
		APIKey:      cfg.WaafiAPIKey,
		Timeout:     cfg.WaafiTimeout,
	}, logger)

	billingService := billing.New(logger, db, stripeClient, waafiClient, cacheRedis, notifier, billing.Plan{
		TrialDays:      cfg.TrialDays,
		DirectAmount:   cfg.DirectPlanAmount,
		DirectCurrency: cfg.DirectPlanCurrency,
		DirectDays:     cfg.DirectPlanDays,
	})
	reconciler := webhook.New(logger, models.TypeStripe, stripeClient, db, cacheRedis, notifier)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Billing:        billingService,
		Webhook:        reconciler,
		Tokens:         jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		DB:             db,
		BypassToken:    cfg.BypassToken,
		CORSOrigin:     cfg.CORSOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP + cfg.WaafiTimeout*2,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		conn:   conn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}
	a.close()
	return err
}

func (a *App) close() {
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
