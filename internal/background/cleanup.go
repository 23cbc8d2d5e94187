package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CleanupFunc removes expired entries and returns how many it removed
type CleanupFunc func(ctx context.Context) (int64, error)

// CleanupManager runs one cleanup job on a fixed interval until stopped
type CleanupManager struct {
	name     string
	cleanup  CleanupFunc
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(name string, cleanup CleanupFunc, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		name:     name,
		cleanup:  cleanup,
		logger:   logger.With(slog.String("job", name)),
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the job once immediately and then on every tick. It blocks
// until Stop is called or ctx is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	defer close(cm.done)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	removed, err := cm.cleanup(cleanupCtx)
	if err != nil {
		cm.logger.Error("cleanup failed", slog.Any("error", err))
		return
	}

	if removed > 0 {
		cm.logger.Info("cleanup completed", slog.Int64("removed", removed))
	}
}

// Stop signals the loop and waits for it to exit. Safe to call more than
// once; must only be called after Start has been launched.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
	<-cm.done
}

// Group starts several managers and stops them together
type Group struct {
	managers []*CleanupManager
	wg       sync.WaitGroup
}

func (g *Group) Add(m *CleanupManager) {
	g.managers = append(g.managers, m)
}

// Start launches every manager in its own goroutine
func (g *Group) Start(ctx context.Context) {
	for _, m := range g.managers {
		g.wg.Add(1)
		go func(m *CleanupManager) {
			defer g.wg.Done()
			m.Start(ctx)
		}(m)
	}
}

// Stop stops every manager and waits for all of them
func (g *Group) Stop() {
	for _, m := range g.managers {
		m.stopOnce.Do(func() { close(m.stopCh) })
	}
	g.wg.Wait()
}
