// Package stripewebhook принимает подписанные события Stripe.
//
// Тело читается целиком без разбора: подпись проверяется по исходным байтам.
package stripewebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/kitab-billing/internal/http/response"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/services/webhook"
)

// SignatureHeader заголовок с подписью Stripe.
const SignatureHeader = "Stripe-Signature"

// maxBodyBytes ограничение размера события.
const maxBodyBytes = 64 << 10

// Handler обрабатывает POST /api/stripe/webhook.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс сверки событий.
type Service interface {
	HandleEvent(ctx context.Context, rawBody []byte, signature string) error
}

// Response тело успешного ответа.
type Response struct {
	Received bool `json:"received"`
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Вебхук Stripe
// @Description Принимает события подписок и счетов. Повторная доставка безопасна.
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} Response
// @Failure 400 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки, событие будет доставлено снова"
// @Router /api/stripe/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.stripewebhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read body"))
		return
	}
	defer r.Body.Close()

	err = h.service.HandleEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		log.Warn("invalid webhook signature", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	case err != nil:
		log.Error("failed to handle webhook event", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("webhook handler failed"))
		return
	}

	render.JSON(w, r, Response{Received: true})
}
