// Package delivery fans a native notification request out to every
// registered target.
package delivery

// Notification is the payload handed to channel senders. Title and icon
// come straight from the bridge's show_notification arguments.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag,omitempty"`
}
