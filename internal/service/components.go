// File: internal/service/components.go
package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/angler/internal/calibration"
	"github.com/xkilldash9x/angler/internal/fishing"
	"github.com/xkilldash9x/angler/internal/humanoid"
	"github.com/xkilldash9x/angler/internal/kvstore"
	"github.com/xkilldash9x/angler/internal/observability"
	"github.com/xkilldash9x/angler/internal/store"
)

// Components holds every initialized service the agent runs with and owns their
// lifecycle.
type Components struct {
	KV         *kvstore.Store
	Telemetry  *store.Store
	Notifier   fishing.Notifier
	Human      *humanoid.Humanoid
	Dispatcher *fishing.Dispatcher
	Feed       fishing.Feed
	Engine     *calibration.Engine

	// reports decouples hole telemetry from handler execution.
	reports    *queuedReporter
	consumerWG *sync.WaitGroup

	// cleanups release external connections, run in reverse order.
	cleanups []func()
}

func (c *Components) addCleanup(fn func()) {
	if fn != nil {
		c.cleanups = append(c.cleanups, fn)
	}
}

// Shutdown gracefully closes all components, ensuring resources are released in the correct order.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop consuming states so no handler produces new reports.
	if c.Dispatcher != nil && c.Dispatcher.Detach() {
		logger.Debug("Dispatcher detached.")
	}

	// 2. Close the report queue and let the consumer drain it.
	if c.reports != nil {
		c.reports.close()
	}
	if c.consumerWG != nil {
		if !timedWait(c.consumerWG, 15*time.Second) {
			logger.Warn("Timed out waiting for hole reports to be persisted.")
		} else {
			logger.Debug("Hole reports consumer finished processing.")
		}
	}

	// 3. Release connections (broker, redis, database pool).
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
	c.cleanups = nil

	// 4. The store goes last; Close writes a final backup.
	if c.KV != nil {
		if err := c.KV.Close(); err != nil {
			logger.Warn("Error closing persistent store.", zap.Error(err))
		} else {
			logger.Debug("Persistent store closed.")
		}
	}

	logger.Info("All components shut down.")
}

// timedWait waits for wg, giving up after timeout. It reports whether wg finished.
func timedWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
