// Package directpayment реализует оплату подписки кошельком WaafiPay.
package directpayment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/kitab-billing/internal/http/handlers/billingerr"
	"github.com/magabrotheeeer/kitab-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/kitab-billing/internal/http/response"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

// Handler обрабатывает POST /api/payment.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики.
type Service interface {
	PayDirect(ctx context.Context, userID int64, accountNo string) (*models.Subscription, error)
}

// Request тело запроса.
type Request struct {
	AccountNo string `json:"account_no" validate:"required,numeric,min=9,max=15"`
}

// Response тело ответа.
type Response struct {
	Status  bool   `json:"status"`
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
// @Summary Оплатить подписку кошельком
// @Description Предавторизация и подтверждение платежа WaafiPay, подписка на 30 дней.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Номер кошелька"
// @Success 200 {object} Response
// @Failure 409 {object} response.ErrorResponse "Подписка уже есть"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Платёж отклонён"
// @Security BearerAuth
// @Router /api/payment [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.directpayment"
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

	sub, err := h.service.PayDirect(r.Context(), userID, req.AccountNo)
	if err != nil {
		log.Error("direct payment failed", slog.Int64("user_id", userID), sl.Err(err))
		code, msg := billingerr.Status(err)
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("direct payment completed", slog.Int64("user_id", userID), slog.String("transaction_id", sub.ExternalID()))
	render.JSON(w, r, Response{
		Status:  true,
		Message: "Payment successful, subscription active",
	})
}
