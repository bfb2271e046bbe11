// Package sender отправляет письма по уведомлениям биллинга из очереди.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/kitab-billing/internal/lib/sl"
	"github.com/magabrotheeeer/kitab-billing/internal/lib/smtp"
	"github.com/magabrotheeeer/kitab-billing/internal/models"
)

const dateLayout = "02.01.2006"

// Service отправляет письма о подписке.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(log *slog.Logger, transport smtp.TransportInterface) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendBillingNotification разбирает сообщение из очереди и отправляет письмо.
func (s *Service) SendBillingNotification(body []byte) error {
	const op = "sender.SendBillingNotification"

	var n models.BillingNotification
	if err := json.Unmarshal(body, &n); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}
	if n.Email == "" {
		s.log.Warn("notification without email, skipped", slog.Int64("user_id", n.UserID))
		return nil
	}

	subject, text := compose(n)
	if err := s.sendEmail([]string{n.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func compose(n models.BillingNotification) (string, string) {
	name := n.FullName
	if name == "" {
		name = n.Email
	}
	until := ""
	if n.PeriodEnd != nil {
		until = fmt.Sprintf(" Оплаченный период до %s.", n.PeriodEnd.Format(dateLayout))
	}

	switch n.Kind {
	case models.NotificationActivated:
		if n.Status == models.StatusTrialing {
			return "Пробный период Kitab начался",
				fmt.Sprintf("Здравствуйте, %s!\n\nВаш пробный период начался.%s\n\nПриятного чтения!", name, until)
		}
		return "Подписка Kitab оформлена",
			fmt.Sprintf("Здравствуйте, %s!\n\nПодписка оформлена, доступ к платному контенту открыт.%s", name, until)
	case models.NotificationCancelled:
		return "Подписка Kitab отменена",
			fmt.Sprintf("Здравствуйте, %s!\n\nВаша подписка отменена, доступ к платному контенту закрыт.", name)
	default:
		return "Статус подписки Kitab изменён",
			fmt.Sprintf("Здравствуйте, %s!\n\nТекущий статус подписки: %s.%s", name, n.Status, until)
	}
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", s.transport.GetSMTPUser()), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
