package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("api-base", a.cfg.ExchangeAPIBase),
		zap.String("journal-driver", a.cfg.JournalDriver),
		zap.String("log-level", a.cfg.LogLevel))

	if err := a.startComponents(); err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.ExchangeWSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Auth must prove out before anything trades. A gateway that cannot
	// fetch the balance is fatal.
	balance, err := a.exchange.GetBalance(a.ctx)
	if err != nil {
		return fmt.Errorf("verify exchange auth: %w", err)
	}
	a.logger.Info("exchange-authenticated", zap.Int64("balance-cents", balance))

	a.wg.Add(1)
	go a.runOperatorServer()

	a.breaker.Start(a.ctx)

	if err := a.stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	if err := a.engine.Start(a.ctx); err != nil {
		return fmt.Errorf("start quoting engine: %w", err)
	}

	return nil
}

func (a *App) runOperatorServer() {
	defer a.wg.Done()
	if err := a.operator.Start(); err != nil {
		a.logger.Error("operator-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
