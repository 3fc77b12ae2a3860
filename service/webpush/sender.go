// Package webpush delivers notifications to a companion browser's push
// subscription, encrypted when the target carries VAPID material and as a
// plain webhook POST otherwise.
package webpush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"beacon/service/delivery"
	"beacon/service/subscription"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	return &Sender{
		logger: logger,
	}
}

func (s *Sender) Send(target *subscription.Target, notif delivery.Notification) error {
	if target.WebPush == nil {
		return delivery.NewPermanentError(fmt.Errorf("no push endpoint configured for target %s", target.ID))
	}

	payload, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if target.WebPush.HasEncryption() {
		sub := &webpush.Subscription{
			Endpoint: target.WebPush.Endpoint,
			Keys: webpush.Keys{
				P256dh: target.WebPush.P256dh,
				Auth:   target.WebPush.Auth,
			},
		}

		resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
			VAPIDPrivateKey: target.WebPush.VapidPrivateKey,
			TTL:             86400,
		})
		if err != nil {
			return fmt.Errorf("failed to send webpush: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return delivery.NewPermanentError(fmt.Errorf("push subscription expired (status %d)", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webpush returned status %d", resp.StatusCode)
		}

		s.logger.Debug("Sent encrypted webpush notification", "targetID", target.ID, "url", target.WebPush.Endpoint)
	} else {
		resp, err := http.Post(target.WebPush.Endpoint, "application/json", bytes.NewBuffer(payload))
		if err != nil {
			return fmt.Errorf("failed to send webhook: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}

		s.logger.Debug("Sent plain webhook notification", "targetID", target.ID, "url", target.WebPush.Endpoint)
	}

	return nil
}
