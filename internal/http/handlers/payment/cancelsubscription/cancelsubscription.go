// Package cancelsubscription реализует отмену подписки пользователем.
package cancelsubscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/billingerr"
	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/http/response"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
)

// Handler обрабатывает POST /api/cancel-subscription.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики.
type Service interface {
	Cancel(ctx context.Context, userID, subscriptionID int64, reason string) (time.Time, error)
}

// Request тело запроса.
type Request struct {
	SubscriptionID int64  `json:"subscription_id" validate:"required,gt=0"`
	Reason         string `json:"reason" validate:"max=500"`
}

// Response тело ответа.
type Response struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	CancelledAt time.Time `json:"cancelled_at"`
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
// @Summary Отменить подписку
// @Description Отменяет подписку у провайдера и закрывает доступ.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Подписка и причина"
// @Success 200 {object} Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Security BearerAuth
// @Router /api/cancel-subscription [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.cancelsubscription"
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

	cancelledAt, err := h.service.Cancel(r.Context(), userID, req.SubscriptionID, req.Reason)
	if err != nil {
		log.Error("failed to cancel subscription", slog.Int64("user_id", userID),
			slog.Int64("subscription_id", req.SubscriptionID), sl.Err(err))
		code, msg := billingerr.Status(err)
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("subscription cancelled", slog.Int64("user_id", userID), slog.Int64("subscription_id", req.SubscriptionID))
	render.JSON(w, r, Response{
		Success:     true,
		Message:     "Subscription cancelled successfully",
		CancelledAt: cancelledAt,
	})
}
