// Package read реализует HTTP-обработчик для получения подписки текущего пользователя.
//
// Признак доступа entitled вычисляется из статуса подписки при чтении.
package read

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
	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

// Handler обрабатывает GET /api/subscription.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики для чтения подписки
}

// Service описывает интерфейс бизнес-логики чтения подписки.
type Service interface {
	Current(ctx context.Context, userID int64) (*models.SubscriptionView, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Текущая подписка
// @Description Возвращает подписку пользователя и признак доступа к платному контенту.
// @Tags Subscriptions
// @Produce  json
// @Success 200 {object} response.Response{data=models.SubscriptionView}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Подписки нет"
// @Security BearerAuth
// @Router /api/subscription [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.read"
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

	view, err := h.service.Current(r.Context(), userID)
	if err != nil {
		log.Error("failed to read subscription", slog.Int64("user_id", userID), sl.Err(err))
		code, msg := billingerr.Status(err)
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	render.JSON(w, r, response.OKWithData(view))
}
