package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/ecsportal/api"
	"github.com/hazyhaar/ecsportal/cache"
	"github.com/hazyhaar/ecsportal/records"
	"github.com/hazyhaar/ecsportal/scheduler"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduled scrapes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	be, closeDB, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	eng, err := a.newEngine(be)
	if err != nil {
		return err
	}
	defer eng.Close()

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	c := cache.New(cache.Options{
		DefaultTTL:  a.cfg.Cache.DefaultTTL,
		MaxKeys:     a.cfg.Cache.MaxKeys,
		CheckPeriod: a.cfg.Cache.CheckPeriod,
	}, a.logger)

	sched := scheduler.New(eng, c, scheduler.Config{Location: loc}, a.logger)
	if a.cfg.SchedulerEnabled() {
		if err := sched.InitializeDefaultSchedules(); err != nil {
			return err
		}
	} else {
		a.logger.Info("scheduler: default schedules disabled")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", a.cfg.Server.Port),
		Handler:           api.New(be, eng, sched, c, api.Config{Location: loc}, a.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		c.Run(gctx)
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })

	err = g.Wait()
	sched.StopAll()
	a.logger.Info("server: stopped")
	return err
}

func (a *app) scrapeCmd() *cobra.Command {
	var dataType string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one extraction and print a JSON summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			be, closeDB, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			eng, err := a.newEngine(be)
			if err != nil {
				return err
			}
			defer eng.Close()

			summary := map[records.ContentType]runSummary{}
			var failed error
			if dataType == scheduler.DataTypeAll {
				res := eng.ScrapeAll(ctx)
				for _, o := range res.Outcomes {
					summary[o.Type] = runSummary{JobID: o.JobID, Accepted: len(o.Records), Rejected: len(o.Rejected), Error: errString(o.Err)}
				}
				failed = res.Err()
			} else {
				t, err := records.ParseContentType(dataType)
				if err != nil {
					return err
				}
				o := eng.Scrape(ctx, t)
				summary[t] = runSummary{JobID: o.JobID, Accepted: len(o.Records), Rejected: len(o.Rejected), Error: errString(o.Err)}
				failed = o.Err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			return failed
		},
	}
	cmd.Flags().StringVar(&dataType, "type", scheduler.DataTypeAll, "news, notices, officers, elections or all")
	return cmd
}

type runSummary struct {
	JobID    string `json:"job_id"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (a *app) jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the default schedule and the next fire time of each job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			now := time.Now()
			out := cmd.OutOrStdout()
			for _, j := range scheduler.DefaultJobs() {
				next, err := scheduler.NextExecution(j.Schedule, now, loc)
				if err != nil {
					return fmt.Errorf("job %s: %w", j.ID, err)
				}
				fmt.Fprintf(out, "%-20s %-12s %-14s %s\n", j.ID, j.DataType, j.Schedule, next.Format(time.RFC3339))
			}
			return nil
		},
	}
}
