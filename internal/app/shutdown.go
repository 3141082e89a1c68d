package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops quoting, runs the one-shot emergency cancel, and closes
// every component in dependency order.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Quoting stops first so nothing re-places what the cancel pass pulls.
	if err := a.engine.Close(); err != nil {
		a.logger.Error("quoting-engine-close-error", zap.Error(err))
	}

	a.orders.EmergencyCancelAll(shutdownCtx)

	if err := a.operator.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("operator-server-shutdown-error", zap.Error(err))
	}

	if err := a.stream.Close(); err != nil {
		a.logger.Error("stream-close-error", zap.Error(err))
	}

	if err := a.books.Close(); err != nil {
		a.logger.Error("book-cache-close-error", zap.Error(err))
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("journal-close-error", zap.Error(err))
	}

	a.cancel()
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")
	return nil
}
