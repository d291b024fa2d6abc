package notify

import (
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Outcome is the one-shot message pushed to a device once its purchase
// clears. Delivery is best-effort; the pull-status endpoint is the backstop.
type Outcome struct {
	Status    string `json:"status"`
	AccessURL string `json:"accessURL"`
}

// Registry maps a device identifier to at most one live outbound channel.
// A new connection for the same device replaces the old entry; the replaced
// channel is closed so its reader unblocks. All mutation and delivery happen
// under one mutex, so a send can never race a close.
type Registry struct {
	log *zap.SugaredLogger

	mu       sync.Mutex
	channels map[string]chan Outcome
}

func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{log: log, channels: make(map[string]chan Outcome)}
}

// Register opens a channel for the device. Last connection wins.
func (r *Registry) Register(device string) chan Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.channels[device]; ok {
		close(old)
		r.log.Infow("notify channel replaced", "device", device)
	}
	ch := make(chan Outcome, 1)
	r.channels[device] = ch
	return ch
}

// Deregister removes the channel if it is still the device's current one.
// A connection replaced by a newer one must not tear down its successor.
func (r *Registry) Deregister(device string, ch chan Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.channels[device]; ok && cur == ch {
		delete(r.channels, device)
		close(cur)
	}
}

// Notify delivers the outcome if a live channel exists; otherwise it is a
// silent no-op. Returns whether the message was handed to a channel.
func (r *Registry) Notify(device string, o Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[device]
	if !ok {
		return false
	}
	select {
	case ch <- o:
		return true
	default:
		// Buffer already holds an undelivered message; drop.
		return false
	}
}

var Module = fx.Options(
	fx.Provide(NewRegistry),
)
