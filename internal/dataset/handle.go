package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"optium/internal/core"
)

// ErrNotLoaded is returned by Current before a successful load.
var ErrNotLoaded = errors.New("dataset not loaded")

// Handle lazily loads a dataset once and shares it read-only.
// A failed load is not remembered: the next Get retries the source.
type Handle struct {
	src Source

	mu       sync.Mutex
	ds       *core.Dataset
	loadedAt time.Time
}

func NewHandle(src Source) *Handle {
	return &Handle{src: src}
}

// Get returns the dataset, loading it on first use.
func (h *Handle) Get(ctx context.Context) (*core.Dataset, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ds != nil {
		return h.ds, nil
	}
	if h.src == nil {
		return nil, errors.New("dataset source not configured")
	}

	start := time.Now()
	ds, err := h.src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	h.ds = ds
	h.loadedAt = time.Now()
	slog.InfoContext(ctx, "Dataset ready",
		"rows", ds.Len(),
		"columns", ds.Columns(),
		"duration_ms", time.Since(start).Milliseconds())
	return ds, nil
}

// Current returns the dataset without triggering a load.
func (h *Handle) Current() (*core.Dataset, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ds == nil {
		return nil, ErrNotLoaded
	}
	return h.ds, nil
}

// Loaded reports whether the dataset is in memory.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ds != nil
}

func (h *Handle) LoadedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadedAt
}

// Static wraps an already built dataset as a Source.
type Static struct {
	Dataset *core.Dataset
}

func (s Static) Load(context.Context) (*core.Dataset, error) {
	if s.Dataset == nil {
		return nil, core.ErrNilDataset
	}
	return s.Dataset, nil
}
