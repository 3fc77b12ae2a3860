// Package subscription persists the delivery targets native notifications
// fan out to: web push subscriptions registered by a companion browser and
// Telegram chats.
package subscription

import "time"

type Channel string

const (
	ChannelWebPush  Channel = "webpush"
	ChannelTelegram Channel = "telegram"
)

func (c Channel) String() string {
	return string(c)
}

type WebPushTarget struct {
	Endpoint        string `json:"endpoint"`
	P256dh          string `json:"p256dh,omitempty"`
	Auth            string `json:"auth,omitempty"`
	VapidPrivateKey string `json:"vapidPrivateKey,omitempty"`
}

// HasEncryption reports whether the subscription carries everything needed
// for an encrypted VAPID push; without it the endpoint is treated as a
// plain webhook.
func (w *WebPushTarget) HasEncryption() bool {
	return w.P256dh != "" && w.Auth != "" && w.VapidPrivateKey != ""
}

type TelegramTarget struct {
	ChatID string `json:"chatId"`
}

type Target struct {
	ID        string          `json:"id"`
	Channel   Channel         `json:"channel"`
	WebPush   *WebPushTarget  `json:"webPush,omitempty"`
	Telegram  *TelegramTarget `json:"telegram,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
