package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bbsharvest/internal/config"
	"bbsharvest/internal/harvest"
	"bbsharvest/internal/metrics"
	"bbsharvest/internal/scheduler"
)

const (
	scheduleJobName = "harvest"
	shutdownTimeout = 10 * time.Second
)

func newScheduleCommand(a *app) *cobra.Command {
	var (
		cronExpr    string
		mode        string
		metricsAddr string
		runNow      bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run harvests periodically on a cron schedule",
		Long: `Run the configured harvest mode on a cron schedule until interrupted.
A tick that fires while the previous harvest is still running is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}

			if cronExpr == "" {
				cronExpr = a.cfg.Schedule.Cron
			}

			if mode == "" {
				mode = a.cfg.Schedule.Mode
			}

			if metricsAddr == "" {
				metricsAddr = a.cfg.Schedule.MetricsAddr
			}

			m, err := harvest.ParseMode(mode)
			if err != nil {
				return err
			}

			if m == harvest.ModeSingle {
				return fmt.Errorf("%w, got %q", config.ErrInvalidScheduleMode, mode)
			}

			collector := metrics.NewCollector()

			svc, err := a.newService(collector)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(a.log.With("component", "scheduler"), time.Local)

			err = sched.Schedule(ctx, scheduleJobName, cronExpr, func(ctx context.Context) error {
				res, err := svc.Run(ctx, harvest.Request{Mode: m})
				if err != nil {
					return err
				}

				a.log.Info("scheduled harvest stored", "run_id", res.RunID, "new_records", res.NewRecords, "corpus_size", res.CorpusSize)

				return nil
			})
			if err != nil {
				return err
			}

			var srv *http.Server

			if metricsAddr != "" {
				srv = serveMetrics(a, metricsAddr, collector)
			}

			sched.Start()

			if next, ok := sched.Next(scheduleJobName); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "⏰ Scheduled %s harvests (%s), next run at %s\n", m, cronExpr, next.Format(time.DateTime))
			}

			if runNow {
				go sched.RunNow(scheduleJobName)
			}

			<-ctx.Done()
			a.log.Info("shutting down scheduler")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			select {
			case <-sched.Stop().Done():
			case <-shutdownCtx.Done():
				a.log.Warn("running harvest did not stop in time")
			}

			if srv != nil {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.log.Warn("metrics server shutdown failed", "error", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression (default schedule.cron)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "harvest mode: batch or incremental (default schedule.mode)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	cmd.Flags().BoolVar(&runNow, "now", false, "run one harvest immediately")

	return cmd
}

// serveMetrics exposes /metrics in the background.
func serveMetrics(a *app, addr string, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.log.Info("metrics endpoint listening", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "error", err)
		}
	}()

	return srv
}
