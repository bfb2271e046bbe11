// Package setupintent реализует выдачу Stripe SetupIntent для сохранения карты.
package setupintent

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/billingerr"
	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/http/response"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
)

// Handler обрабатывает POST /api/create-setup-intent.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики.
type Service interface {
	CreateSetupIntent(ctx context.Context, userID int64) (*billing.SetupIntentResult, error)
}

// Response тело успешного ответа.
type Response struct {
	ClientSecret string `json:"client_secret"`
	Intent       string `json:"intent"`
	Customer     string `json:"customer"`
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Создать SetupIntent
// @Description Создаёт клиента Stripe при первом обращении и выдаёт client secret для сохранения карты.
// @Tags Payments
// @Produce  json
// @Success 200 {object} Response
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /api/create-setup-intent [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.setupintent"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.service.CreateSetupIntent(r.Context(), userID)
	if err != nil {
		log.Error("failed to create setup intent", slog.Int64("user_id", userID), sl.Err(err))
		code, msg := billingerr.Status(err)
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("setup intent created", slog.Int64("user_id", userID), slog.String("intent", res.IntentID))
	render.JSON(w, r, Response{
		ClientSecret: res.ClientSecret,
		Intent:       res.IntentID,
		Customer:     res.Customer,
	})
}
