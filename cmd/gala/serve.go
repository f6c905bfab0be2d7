package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/server"
	"github.com/ShayCichocki/gala/internal/signals"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Run a long-lived process that takes start/stop requests and answers to
notifications over HTTP. Set server.jwt_secret to require HS256 bearer
tokens, and scheduler.resume_schedule (cron syntax) to restart idle
events that have AI work left.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Component("cli")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.close(30 * time.Second)

	watcher, err := signals.NewWatcher(cfg.Signals.Dir)
	if err != nil {
		return err
	}
	defer watcher.Close()
	a.manager.SetStopWatcher(watcher)

	// Runs outlive the request that started them but not the process.
	handler, err := server.New(server.Config{
		Store:       a.db,
		Manager:     a.manager,
		JWTSecret:   cfg.Server.JWTSecret,
		BaseContext: context.WithoutCancel(ctx),
	})
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoCtx("listening", map[string]any{"addr": addr, "auth": cfg.Server.JWTSecret != ""})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if schedule := cfg.Scheduler.ResumeSchedule; schedule != "" {
		sched, err := server.NewResumeScheduler(schedule, a.manager)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			sched.Start(gctx)
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	return g.Wait()
}
