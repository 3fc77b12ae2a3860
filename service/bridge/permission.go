package bridge

import "sync"

// PermissionState is the negotiated notification permission, with the same
// three values the web API uses.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// PermissionStore holds the permission state for one bridge instance.
// Concurrent negotiations may interleave; the last write wins.
type PermissionStore struct {
	mu    sync.Mutex
	state PermissionState
}

func NewPermissionStore() *PermissionStore {
	return &PermissionStore{state: PermissionDefault}
}

func (p *PermissionStore) Get() PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PermissionStore) Set(state PermissionState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}
