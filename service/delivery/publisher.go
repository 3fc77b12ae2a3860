package delivery

import (
	"fmt"
	"log/slog"
	"time"

	"beacon/service/subscription"
	"beacon/service/util"
)

// Sender delivers one notification to one target on its channel.
type Sender interface {
	Send(target *subscription.Target, notif Notification) error
}

// Publisher fans notifications out to every registered target. It runs on
// the invoke request path, so retries are short and bounded: the caller
// (the client-side bridge) has its own fallback for a failed dispatch.
type Publisher struct {
	store   *subscription.Store
	senders map[subscription.Channel]Sender
	logger  *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
}

func NewPublisher(store *subscription.Store, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:       store,
		senders:     make(map[subscription.Channel]Sender),
		logger:      logger,
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
	}
}

func (p *Publisher) RegisterSender(channel subscription.Channel, sender Sender) {
	p.senders[channel] = sender
}

// Supported reports whether any channel sender is registered at all. It
// backs the host's is_notification_supported answer.
func (p *Publisher) Supported() bool {
	return len(p.senders) > 0
}

// Publish delivers notif to all registered targets. It returns an error
// only when nothing was delivered anywhere; a partial success counts as
// delivered.
func (p *Publisher) Publish(notif Notification) error {
	targets, err := p.store.GetTargets()
	if err != nil {
		return util.LogError(p.logger, "Failed to load delivery targets", err)
	}

	if len(targets) == 0 {
		p.logger.Warn("No delivery targets registered, dropping notification", "title", notif.Title)
		return fmt.Errorf("no delivery targets registered")
	}

	var lastErr error
	successCount := 0

	for i := range targets {
		target := &targets[i]
		sender, ok := p.senders[target.Channel]
		if !ok {
			p.logger.Debug("Skipping target for disabled channel", "channel", target.Channel, "targetID", target.ID)
			continue
		}

		if err := p.sendWithRetry(sender, target, notif); err != nil {
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	if successCount == 0 {
		return fmt.Errorf("no sender available for any registered target")
	}

	return nil
}

func (p *Publisher) sendWithRetry(sender Sender, target *subscription.Target, notif Notification) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		err := sender.Send(target, notif)
		if err == nil {
			if attempt > 0 {
				p.logger.Info("Notification sent after retry", "targetID", target.ID, "attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if IsPermanent(err) {
			p.logger.Error("Permanent error, not retrying", "targetID", target.ID, "error", err)
			return err
		}

		if attempt < p.maxAttempts-1 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt))
			p.logger.Warn("Failed to send notification, retrying", "targetID", target.ID, "attempt", attempt+1, "error", err, "retryIn", delay)
			time.Sleep(delay)
		}
	}

	p.logger.Error("Failed to send notification after retries", "targetID", target.ID, "attempts", p.maxAttempts, "error", lastErr)
	return lastErr
}
