package plan

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Provider returns the catalog in effect for the current call.
type Provider interface {
	Current() *Catalog
}

// Holder keeps the active catalog and swaps it atomically on reload.
// Readers never observe a partially loaded catalog.
type Holder struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Catalog]

	mu          sync.Mutex
	fingerprint string
	onReload    []func(*Catalog)
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithHolderLogger sets the logger used for reload events.
func WithHolderLogger(l *slog.Logger) HolderOption {
	return func(h *Holder) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithReloadHook registers fn to run after every successful reload.
func WithReloadHook(fn func(*Catalog)) HolderOption {
	return func(h *Holder) {
		if fn != nil {
			h.onReload = append(h.onReload, fn)
		}
	}
}

// NewHolder loads the initial catalog from source.
func NewHolder(ctx context.Context, source Source, opts ...HolderOption) (*Holder, error) {
	if source == nil {
		return nil, ErrNoCatalogSource
	}
	h := &Holder{
		source: source,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the active catalog.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Reload fetches and validates a new definition.
// On failure the previous catalog stays active and the error is returned.
func (h *Holder) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var fp string
	if f, ok := h.source.(Fingerprinter); ok {
		var err error
		if fp, err = f.Fingerprint(ctx); err != nil {
			return err
		}
	}
	return h.reloadLocked(ctx, fp)
}

func (h *Holder) reloadLocked(ctx context.Context, fp string) error {
	def, err := h.source.Load(ctx)
	if err != nil {
		return err
	}
	c, err := NewCatalog(def)
	if err != nil {
		return err
	}

	h.current.Store(c)
	h.fingerprint = fp
	for _, fn := range h.onReload {
		fn(c)
	}
	return nil
}

// Watch polls the source every interval and reloads when its fingerprint changes.
// Sources that can't be fingerprinted are reloaded on every tick.
// Watch blocks until ctx is cancelled.
func (h *Holder) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := h.poll(ctx)
			switch {
			case err != nil:
				h.logger.WarnContext(ctx, "catalog reload failed, keeping previous catalog",
					slog.Any("error", err))
			case changed:
				h.logger.InfoContext(ctx, "catalog reloaded",
					slog.Int("actions", len(h.Current().Actions())))
			}
		}
	}
}

func (h *Holder) poll(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var fp string
	if f, ok := h.source.(Fingerprinter); ok {
		var err error
		if fp, err = f.Fingerprint(ctx); err != nil {
			return false, err
		}
		if fp == h.fingerprint {
			return false, nil
		}
	}
	if err := h.reloadLocked(ctx, fp); err != nil {
		return false, err
	}
	return true, nil
}
