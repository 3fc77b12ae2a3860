package bridge

import (
	"fmt"
	"sync"
	"time"
)

// Options mirrors the recognized subset of the web Notification options
// object. Unknown keys on the web side are dropped before they get here.
type Options struct {
	Body string
	Icon string
	Tag  string
	Data any

	// Accepted for API compatibility; the native side may not honor them.
	RequireInteraction bool
	Silent             bool

	// OnShow, when set, is scheduled asynchronously with the returned
	// facade. It is a local emulation, not a display confirmation.
	OnShow func(*Notification)
}

// Request is the normalized notification payload handed to the transport.
// It is built once at construction time and never mutated afterwards.
type Request struct {
	Title string
	Body  string
	Icon  string
	Tag   string
	Data  any

	RequireInteraction bool
	Silent             bool

	Timestamp time.Time
}

func newRequest(title any, opts *Options) Request {
	req := Request{
		Title:     coerceTitle(title),
		Timestamp: time.Now(),
	}
	if opts != nil {
		req.Body = opts.Body
		req.Icon = opts.Icon
		req.Tag = opts.Tag
		req.Data = opts.Data
		req.RequireInteraction = opts.RequireInteraction
		req.Silent = opts.Silent
	}
	return req
}

// invokeArgs builds the show_notification payload. The icon key is always
// present, null when absent, matching what the host expects.
func (r Request) invokeArgs() map[string]any {
	args := map[string]any{
		"title": r.Title,
		"body":  r.Body,
		"icon":  nil,
	}
	if r.Icon != "" {
		args["icon"] = r.Icon
	}
	if r.Tag != "" {
		args["tag"] = r.Tag
	}
	return args
}

// coerceTitle stringifies whatever the caller passed. A malformed title is
// never grounds for refusing construction.
func coerceTitle(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Recognized addEventListener event names, mapped onto the four handler
// slots. Anything else is silently ignored.
const (
	eventClick = "click"
	eventShow  = "show"
	eventError = "error"
	eventClose = "close"
)

// Notification is the facade returned in place of a real notification
// handle. It carries the display fields of the request plus four
// independently settable handler slots. It has no live connection to the
// native notification: closing it only runs the local close handler, and
// native click/dismiss events never reach it.
type Notification struct {
	Title string
	Body  string
	Icon  string
	Tag   string
	Data  any

	Timestamp time.Time

	mu       sync.Mutex
	handlers map[string]func(*Notification)
	closed   bool
}

func newNotification(req Request) *Notification {
	return &Notification{
		Title:     req.Title,
		Body:      req.Body,
		Icon:      req.Icon,
		Tag:       req.Tag,
		Data:      req.Data,
		Timestamp: req.Timestamp,
		handlers:  make(map[string]func(*Notification)),
	}
}

// AddEventListener assigns handler to the slot named by event. Only click,
// show, error and close are recognized; unrecognized names are a no-op
// rather than an error.
func (n *Notification) AddEventListener(event string, handler func(*Notification)) {
	switch event {
	case eventClick, eventShow, eventError, eventClose:
		n.setHandler(event, handler)
	}
}

// RemoveEventListener is accepted for API compatibility but has no effect.
// Known gap: handlers registered on this facade cannot be detached.
func (n *Notification) RemoveEventListener(event string, handler func(*Notification)) {}

// Close invokes the close handler synchronously, at most once across the
// facade's lifetime, and does nothing else. It cannot dismiss the native
// notification.
func (n *Notification) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	h := n.handlers[eventClose]
	n.mu.Unlock()

	if h != nil {
		h(n)
	}
}

func (n *Notification) setHandler(event string, handler func(*Notification)) {
	n.mu.Lock()
	n.handlers[event] = handler
	n.mu.Unlock()
}

// fire runs the handler for event, if any. Only the bridge's own paths and
// tests call this; there is no wiring for native-side events to reach it.
func (n *Notification) fire(event string) {
	n.mu.Lock()
	h := n.handlers[event]
	n.mu.Unlock()

	if h != nil {
		h(n)
	}
}
