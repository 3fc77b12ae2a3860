package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"beacon/service/bridge"
	"beacon/service/config"
	"beacon/service/transport"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Port:             8080,
		APIKey:           "test-key",
		RateLimit:        10000,
		AppURL:           "https://app.example.com",
		ConnectivityHost: "127.0.0.1",
		ConnectivityPort: 1,
		StoragePath:      ":memory:",
	}

	s, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.store.Close(); err != nil {
			t.Errorf("store close: %v", err)
		}
	})
	return s
}

func invoke(t *testing.T, s *Server, command string, args map[string]any) invokeResponse {
	t.Helper()

	body, err := json.Marshal(invokeRequest{Command: command, Args: args})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/bridge/invoke", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("invoke %s: status %d, body %s", command, rec.Code, rec.Body.String())
	}

	var resp invokeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode invoke response: %v", err)
	}
	return resp
}

func registerWebhook(t *testing.T, s *Server, endpoint string) string {
	t.Helper()

	body := fmt.Sprintf(`{"endpoint":%q}`, endpoint)
	req := httptest.NewRequest(http.MethodPost, "/targets/webpush", bytes.NewReader([]byte(body)))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("register target: status %d, body %s", rec.Code, rec.Body.String())
	}

	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if out["id"] == "" {
		t.Fatal("register target: empty id")
	}
	return out["id"]
}

func TestInvokeRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/bridge/invoke", bytes.NewReader([]byte(`{"command":"is_notification_supported"}`)))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/bridge/invoke", bytes.NewReader([]byte(`{"command":"is_notification_supported"}`)))
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
}

func TestInvokeMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/bridge/invoke", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestInvokeUnknownCommand(t *testing.T) {
	s := newTestServer(t)

	resp := invoke(t, s, "open_pod_bay_doors", nil)
	if resp.Error == "" {
		t.Fatal("expected error field for unknown command")
	}
}

func TestInvokeIsSupported(t *testing.T) {
	s := newTestServer(t)

	resp := invoke(t, s, bridge.CmdIsSupported, nil)
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if got, ok := resp.Result.(bool); !ok || !got {
		t.Fatalf("expected result true, got %v", resp.Result)
	}
}

func TestInvokePermissionFollowsTargets(t *testing.T) {
	s := newTestServer(t)

	resp := invoke(t, s, bridge.CmdRequestPermission, nil)
	if got, ok := resp.Result.(bool); !ok || got {
		t.Fatalf("expected permission false with no targets, got %v", resp.Result)
	}

	id := registerWebhook(t, s, "https://push.example.com/sub/1")

	resp = invoke(t, s, bridge.CmdCheckPermission, nil)
	if got, ok := resp.Result.(bool); !ok || !got {
		t.Fatalf("expected permission true with a target, got %v", resp.Result)
	}

	req := httptest.NewRequest(http.MethodDelete, "/targets/"+id, nil)
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete target: status %d", rec.Code)
	}

	resp = invoke(t, s, bridge.CmdRequestPermission, nil)
	if got, ok := resp.Result.(bool); !ok || got {
		t.Fatalf("expected permission false after delete, got %v", resp.Result)
	}
}

func TestInvokeShowNotificationDelivers(t *testing.T) {
	s := newTestServer(t)

	var mu sync.Mutex
	var received []map[string]string
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("webhook decode: %v", err)
		}
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
	}))
	defer webhook.Close()

	registerWebhook(t, s, webhook.URL)

	resp := invoke(t, s, bridge.CmdShowNotification, map[string]any{
		"title": "Hello",
		"body":  "World",
		"icon":  nil,
	})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", len(received))
	}
	if received[0]["title"] != "Hello" || received[0]["body"] != "World" {
		t.Fatalf("unexpected payload: %v", received[0])
	}
}

func TestInvokeShowNotificationNoTargets(t *testing.T) {
	s := newTestServer(t)

	resp := invoke(t, s, bridge.CmdShowNotification, map[string]any{"title": "orphan"})
	if resp.Error == "" {
		t.Fatal("expected error field when no targets are registered")
	}
}

func TestInvokeKeychainLifecycle(t *testing.T) {
	s := newTestServer(t)

	if resp := invoke(t, s, bridge.CmdKeychainExists, map[string]any{"key": "session"}); resp.Result != false {
		t.Fatalf("expected exists false before store, got %v", resp.Result)
	}

	if resp := invoke(t, s, bridge.CmdKeychainStore, map[string]any{"key": "session", "value": "s3cret"}); resp.Error != "" {
		t.Fatalf("store failed: %s", resp.Error)
	}

	if resp := invoke(t, s, bridge.CmdKeychainExists, map[string]any{"key": "session"}); resp.Result != true {
		t.Fatalf("expected exists true after store, got %v", resp.Result)
	}

	resp := invoke(t, s, bridge.CmdKeychainRetrieve, map[string]any{"key": "session"})
	if resp.Result != "s3cret" {
		t.Fatalf("expected stored value back, got %v", resp.Result)
	}

	if resp := invoke(t, s, bridge.CmdKeychainRemove, map[string]any{"key": "session"}); resp.Error != "" {
		t.Fatalf("remove failed: %s", resp.Error)
	}

	if resp := invoke(t, s, bridge.CmdKeychainRetrieve, map[string]any{"key": "session"}); resp.Error == "" {
		t.Fatal("expected error retrieving removed key")
	}
}

func TestRegisterWebPushRejectsBadEndpoint(t *testing.T) {
	s := newTestServer(t)

	for _, endpoint := range []string{"", "not-a-url", "ftp://example.com/x"} {
		body := fmt.Sprintf(`{"endpoint":%q}`, endpoint)
		req := httptest.NewRequest(http.MethodPost, "/targets/webpush", bytes.NewReader([]byte(body)))
		req.Header.Set("Authorization", "Bearer test-key")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("endpoint %q: expected 400, got %d", endpoint, rec.Code)
		}
	}
}

func TestListTargets(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/targets", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list targets: status %d", rec.Code)
	}
	var targets []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &targets); err != nil {
		t.Fatalf("expected JSON array, got %s", rec.Body.String())
	}
	if len(targets) != 0 {
		t.Fatalf("expected empty list, got %d entries", len(targets))
	}

	registerWebhook(t, s, "https://push.example.com/sub/2")

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &targets); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
}

func TestDeleteMissingTarget(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/targets/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing target, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if resp.Version != "test" {
		t.Fatalf("expected version test, got %q", resp.Version)
	}
	if !resp.Supported {
		t.Fatal("expected supported true")
	}
}

func TestPairReturnsPNG(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/pair", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("pair: status %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty PNG body")
	}
}

// TestBridgeAgainstServer runs the client-side bridge against a real server
// over HTTP: init, permission negotiation, a notify dispatch that lands on a
// registered webhook.
func TestBridgeAgainstServer(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	var mu sync.Mutex
	var received []map[string]string
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
	}))
	defer webhook.Close()

	registerWebhook(t, s, webhook.URL)

	b, err := bridge.New(bridge.Config{Invoker: transport.NewClient(srv.URL, "test-key")})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b.Init(ctx)
	if got := b.Permission(); got != bridge.PermissionGranted {
		t.Fatalf("expected granted permission, got %q", got)
	}

	b.Notify("Build finished", &bridge.Options{Body: "all checks passed"})
	b.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(received))
	}
	if received[0]["title"] != "Build finished" || received[0]["body"] != "all checks passed" {
		t.Fatalf("unexpected payload: %v", received[0])
	}
}
