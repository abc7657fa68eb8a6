package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"campuspay/internal/handler"
	"campuspay/internal/job"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set to serve the API")
	}

	dailyReset := job.NewDailyResetJob(a.svc.Student, a.calendar, a.cfg.Business.DailyResetCron, a.cfg.Business.DailyResetForce, a.logger)
	if err := dailyReset.Schedule(ctx); err != nil {
		return err
	}
	reconcile := job.NewReconcileJob(a.svc.Recharge, a.svc.Store, a.reconcileInterval(), a.logger)

	var wg sync.WaitGroup
	start := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	start(dailyReset.Start)
	start(reconcile.Start)
	if a.cfg.Events.Outbox && len(a.cfg.Events.Drivers) > 0 {
		outboxSender := job.NewOutboxSender(a.db, a.transport, a.cfg, a.logger)
		start(outboxSender.Start)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler.SetupRouter(a.svc, a.cfg, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("服务启动", "port", a.cfg.Server.Port, "timezone", a.calendar.Location().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		a.logger.Error("服务启动失败", "error", err)
		stop()
	}

	a.logger.Info("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Error("服务关闭异常", "error", shutdownErr)
	}

	wg.Wait()
	a.logger.Info("服务已关闭")
	return err
}
