// Package createsubscription реализует оформление подписки по подтверждённому SetupIntent.
package createsubscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/billingerr"
	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/http/response"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
)

// Handler обрабатывает POST /api/create-subscription.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики.
type Service interface {
	CreateSubscription(ctx context.Context, userID int64, intentID, customerID string) (*billing.CreateResult, error)
}

// Request тело запроса.
type Request struct {
	Intent   string `json:"intent" validate:"required,startswith=seti_"`
	Customer string `json:"customer" validate:"required,startswith=cus_"`
}

// Response тело ответа.
type Response struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Привязывает карту из SetupIntent и создаёт подписку. Пробный период выдаётся один раз.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "SetupIntent и клиент"
// @Success 200 {object} Response
// @Failure 400 {object} Response "Подписка не активирована"
// @Failure 404 {object} response.ErrorResponse "Клиент не найден"
// @Failure 409 {object} response.ErrorResponse "Подписка уже есть"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /api/create-subscription [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.createsubscription"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.CreateSubscription(r.Context(), userID, req.Intent, req.Customer)
	if err != nil {
		log.Error("failed to create subscription", slog.Int64("user_id", userID), sl.Err(err))
		code, msg := billingerr.Status(err)
		render.Status(r, code)
		if errors.Is(err, billing.ErrActivationIncomplete) {
			render.JSON(w, r, Response{Success: false, Message: msg})
			return
		}
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("subscription created", slog.Int64("user_id", userID), slog.String("status", res.ProviderStatus))
	render.JSON(w, r, Response{
		Success: true,
		Status:  res.ProviderStatus,
		Message: res.Message,
	})
}
