package telegram

import (
	"fmt"
	"log/slog"
	"strconv"

	"beacon/service/delivery"
	"beacon/service/subscription"
)

type Sender struct {
	client *Client
	logger *slog.Logger
}

func NewSender(client *Client, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger,
	}
}

func (s *Sender) Send(target *subscription.Target, notif delivery.Notification) error {
	if s.client == nil || !s.client.IsAvailable() {
		return delivery.NewPermanentError(fmt.Errorf("telegram channel not configured or unreachable"))
	}

	if target.Telegram == nil || target.Telegram.ChatID == "" {
		return delivery.NewPermanentError(fmt.Errorf("no telegram chat configured for target %s", target.ID))
	}

	chatID, err := strconv.ParseInt(target.Telegram.ChatID, 10, 64)
	if err != nil {
		return delivery.NewPermanentError(fmt.Errorf("invalid chat ID: %w", err))
	}

	message := notif.Body
	if notif.Title != "" {
		message = fmt.Sprintf("<b>%s</b>\n%s", notif.Title, notif.Body)
	}

	if err := s.client.SendMessage(chatID, message); err != nil {
		s.logger.Error("Failed to send telegram message", "chatID", chatID, "error", err)
		return err
	}

	return nil
}
