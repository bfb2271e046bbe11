// Package billingerr переводит ошибки сервисов биллинга в HTTP-статусы.
package billingerr

import (
	"errors"
	"net/http"

	"github.com/magabrotheeeer/kitab-billing/internal/services/billing"
	"github.com/magabrotheeeer/kitab-billing/internal/storage/repository"
)

// Status возвращает код ответа и сообщение для клиента.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "subscription not found"
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return http.StatusConflict, "user already has an active subscription"
	case errors.Is(err, billing.ErrInProgress):
		return http.StatusConflict, "subscription operation already in progress"
	case errors.Is(err, billing.ErrActivationIncomplete):
		return http.StatusBadRequest, "subscription could not be activated"
	case errors.Is(err, billing.ErrProvider):
		return http.StatusBadGateway, "payment provider error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
