// Package bridge intercepts web-style notification requests from an embedded
// webview and relays them to the native host over an injected invoke
// transport. It mirrors the browser Notification API closely enough that
// unmodified page code keeps working: construction never blocks, never
// throws, and always hands back a local facade object.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// Commands understood by the host side of the invoke transport.
const (
	CmdIsSupported       = "is_notification_supported"
	CmdCheckPermission   = "check_notification_permission"
	CmdRequestPermission = "request_notification_permission"
	CmdShowNotification  = "show_notification"

	CmdKeychainStore    = "keychain_store"
	CmdKeychainRetrieve = "keychain_retrieve"
	CmdKeychainRemove   = "keychain_remove"
	CmdKeychainExists   = "keychain_exists"
)

// ErrNoTransport is returned by New when no invoke transport is available.
// Without a transport the bridge must not install itself; callers keep
// whatever notification facility they already had.
var ErrNoTransport = errors.New("bridge: invoke transport unavailable")

// Invoker is the asynchronous remote-invocation primitive crossing the
// webview/native process boundary.
type Invoker interface {
	Invoke(ctx context.Context, command string, args map[string]any) (json.RawMessage, error)
}

// LegacySink is the original (pre-bridge) notification facility. It is only
// consulted on the fallback path, and only when it reports granted
// permission of its own.
type LegacySink interface {
	Permission() PermissionState
	Notify(req Request) error
}

type Config struct {
	Invoker Invoker
	Legacy  LegacySink // optional fallback facility
	Logger  *slog.Logger
}

// Bridge converts notification construction calls into show_notification
// invokes. All native interaction is fire-and-forget: no error originating
// on the dispatch path ever reaches the constructing caller, failures
// terminate in a log statement (and, when possible, a legacy fallback).
type Bridge struct {
	invoker Invoker
	legacy  LegacySink
	logger  *slog.Logger
	perms   *PermissionStore

	wg sync.WaitGroup
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Invoker == nil {
		return nil, ErrNoTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		invoker: cfg.Invoker,
		legacy:  cfg.Legacy,
		logger:  logger,
		perms:   NewPermissionStore(),
	}, nil
}

// Init probes the host for native notification support and, when supported,
// performs one unprompted permission negotiation. A failed probe is logged
// and leaves permission at its initial "default" value.
func (b *Bridge) Init(ctx context.Context) {
	res, err := b.invoker.Invoke(ctx, CmdIsSupported, nil)
	if err != nil {
		b.logger.Warn("Notification support probe failed", "error", err)
		return
	}
	if !parseBool(res) {
		b.logger.Debug("Native notifications not supported on host")
		return
	}
	b.RequestPermission(ctx, nil)
}

// Notify builds an immutable request from the given title and options,
// schedules its dispatch to the host, and returns a facade immediately.
// The title is stringified, never rejected. If opts.OnShow is set it is
// invoked asynchronously with the facade as a local emulation of display;
// it carries no guarantee that the native side ever showed anything, and
// no ordering guarantee relative to the dispatch itself.
func (b *Bridge) Notify(title any, opts *Options) *Notification {
	req := newRequest(title, opts)
	n := newNotification(req)

	if opts != nil && opts.OnShow != nil {
		show := opts.OnShow
		n.setHandler(eventShow, show)
		b.track(func() { show(n) })
	}

	b.track(func() { b.dispatch(context.Background(), req) })
	return n
}

// RequestPermission negotiates notification permission with the host. Each
// call re-dispatches; nothing is cached between calls. The negotiation is
// fail-closed: a transport failure stores and reports "denied" rather than
// surfacing the error. If cb is non-nil it is invoked exactly once with the
// same state that is returned.
func (b *Bridge) RequestPermission(ctx context.Context, cb func(PermissionState)) PermissionState {
	state := b.negotiate(ctx)
	if cb != nil {
		cb(state)
	}
	return state
}

func (b *Bridge) negotiate(ctx context.Context) PermissionState {
	res, err := b.invoker.Invoke(ctx, CmdRequestPermission, nil)
	if err != nil {
		b.logger.Warn("Permission negotiation failed, denying", "error", err)
		b.perms.Set(PermissionDenied)
		return PermissionDenied
	}
	state := PermissionDenied
	if parseBool(res) {
		state = PermissionGranted
	}
	b.perms.Set(state)
	b.logger.Debug("Permission negotiated", "state", state)
	return state
}

// Permission reports the current negotiated permission.
func (b *Bridge) Permission() PermissionState { return b.perms.Get() }

// SetPermission overrides the stored permission without negotiating.
func (b *Bridge) SetPermission(state PermissionState) { b.perms.Set(state) }

// MaxActions reads through to the legacy facility when it exposes the
// notion, otherwise 0: the bridge itself supports no notification actions.
func (b *Bridge) MaxActions() int {
	if m, ok := b.legacy.(interface{ MaxActions() int }); ok {
		return m.MaxActions()
	}
	return 0
}

// Flush waits for all scheduled dispatches and handler emulations to finish.
// Intended for shutdown paths and tests; page-facing callers never wait.
func (b *Bridge) Flush() { b.wg.Wait() }

func (b *Bridge) track(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

func (b *Bridge) dispatch(ctx context.Context, req Request) {
	if _, err := b.invoker.Invoke(ctx, CmdShowNotification, req.invokeArgs()); err != nil {
		b.fallback(req, err)
		return
	}
	b.logger.Debug("Notification dispatched", "title", req.Title)
}

// fallback handles a rejected show_notification dispatch. The failure is
// always logged; legacy delivery is attempted only when a legacy facility
// exists and reports granted permission. Whatever the legacy path does,
// nothing escapes this function.
func (b *Bridge) fallback(req Request, cause error) {
	b.logger.Error("Native notification dispatch failed", "title", req.Title, "error", cause)

	if b.legacy == nil || b.legacy.Permission() != PermissionGranted {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Legacy notification panicked", "title", req.Title, "panic", r)
		}
	}()
	if err := b.legacy.Notify(req); err != nil {
		b.logger.Error("Legacy notification failed", "title", req.Title, "error", err)
	} else {
		b.logger.Info("Delivered via legacy notification facility", "title", req.Title)
	}
}

func parseBool(raw json.RawMessage) bool {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return v
}
