// Package api собирает HTTP-приложение биллинга: маршруты, зависимости и запуск сервера.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	// регистрация swagger-спецификации
	_ "github.com/magabrotheeeer/kitab-billing/docs"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/payment/cancelsubscription"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/payment/createsubscription"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/payment/directpayment"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/payment/setupintent"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/payment/stripewebhook"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/subscription/read"
	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/trial/canceltrial"
	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
)

// BillingService операции биллинга, которые вызывают обработчики.
type BillingService interface {
	setupintent.Service
	createsubscription.Service
	cancelsubscription.Service
	directpayment.Service
	canceltrial.Service
	read.Service
}

// Deps зависимости маршрутов.
type Deps struct {
	Billing        BillingService
	Webhook        stripewebhook.Service
	Tokens         middlewarectx.TokenParser
	DB             health.Pinger
	BypassToken    string
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{d.CORSOrigin},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middlewarectx.BypassHeader},
			MaxAge:         300,
		}),
	)

	r.Get("/health", health.New(logger, d.DB).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		// Вебхук проверяется подписью, а не токеном
		r.Post("/stripe/webhook", stripewebhook.New(logger, d.Webhook).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Tokens, d.BypassToken, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.RateLimitRPS, d.RateLimitBurst))
			r.Post("/create-setup-intent", setupintent.New(logger, d.Billing).ServeHTTP)
			r.Post("/create-subscription", createsubscription.New(logger, d.Billing).ServeHTTP)
			r.Post("/cancel-subscription", cancelsubscription.New(logger, d.Billing).ServeHTTP)
			r.Post("/payment", directpayment.New(logger, d.Billing).ServeHTTP)
			r.Post("/cancel-trial", canceltrial.New(logger, d.Billing).ServeHTTP)
			r.Get("/subscription", read.New(logger, d.Billing).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
