package memory

import (
	"context"
	"sync"
	"time"
)

type Watermarks struct {
	mu sync.RWMutex
	m  map[int64]time.Time
}

func NewWatermarks() *Watermarks { return &Watermarks{m: map[int64]time.Time{}} }

func (w *Watermarks) Get(ctx context.Context, locationID int64) (time.Time, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.m[locationID]
	return t, ok, nil
}

func (w *Watermarks) Set(ctx context.Context, locationID int64, t time.Time) error {
	w.mu.Lock()
	w.m[locationID] = t
	w.mu.Unlock()
	return nil
}
