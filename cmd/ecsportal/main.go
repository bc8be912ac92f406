// Command ecsportal scrapes the Bangladesh Election Commission website,
// stores the extracted records and serves them over HTTP.
//
//	ecsportal serve                 HTTP API, scheduler and cache sweeper
//	ecsportal scrape --type news    one run, JSON summary on stdout
//	ecsportal jobs                  default schedule and next fire times
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/ecsportal/dbopen"
	"github.com/hazyhaar/ecsportal/internal/config"
	"github.com/hazyhaar/ecsportal/records"
	"github.com/hazyhaar/ecsportal/scraper"
	"github.com/hazyhaar/ecsportal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("ecsportal", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ecsportal",
		Short:         "Election Commission Secretariat portal scraper and API",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
			slog.SetDefault(a.logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", os.Getenv("ECSPORTAL_CONFIG"), "YAML config file")
	root.AddCommand(a.serveCmd(), a.scrapeCmd(), a.jobsCmd())
	return root
}

// backend is what both store implementations provide.
type backend interface {
	scraper.Sink
	InsertRecord(ctx context.Context, r records.Record) error
	List(ctx context.Context, q records.Query) (records.Page, error)
	Counts(ctx context.Context) (map[records.ContentType]int, error)
	RecentRuns(ctx context.Context, limit int) ([]records.RunLog, error)
	RunStats(ctx context.Context, since time.Time) (store.RunStats, error)
}

// openBackend picks the Supabase REST store when its URL and key are set,
// and a SQL store otherwise. The returned func releases the database.
func (a *app) openBackend(ctx context.Context) (backend, func() error, error) {
	if a.cfg.UseSupabaseREST() {
		s, err := store.NewSupabaseStore(a.cfg.Store.SupabaseURL, a.cfg.Store.SupabaseKey)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("store: supabase rest", "url", a.cfg.Store.SupabaseURL)
		return s, func() error { return nil }, nil
	}

	dsn, err := a.cfg.DSN()
	if err != nil {
		return nil, nil, err
	}
	dialect := dbopen.DialectOf(dsn)
	var opts []dbopen.Option
	if dialect == dbopen.SQLite {
		opts = append(opts, dbopen.WithMkdirAll())
	}
	db, err := dbopen.Open(dsn, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := store.ApplySchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	a.logger.Info("store: sql", "dialect", string(dialect))
	return store.NewSQLStore(db, dialect), db.Close, nil
}

// newEngine builds the scraper engine over a headless Chrome page source.
func (a *app) newEngine(sink scraper.Sink) (*scraper.Engine, error) {
	profiles, err := scraper.LoadProfiles(a.cfg.Scraper.SelectorsFile)
	if err != nil {
		return nil, err
	}
	src := scraper.NewRodSource(scraper.RodConfig{
		RemoteURL:      a.cfg.Browser.Remote,
		Bin:            a.cfg.Browser.Bin,
		UserAgent:      a.cfg.Scraper.UserAgent,
		PageTimeout:    a.cfg.Scraper.PageTimeout,
		WaitTimeout:    a.cfg.Scraper.WaitTimeout,
		BlockResources: a.cfg.Browser.ResourceBlocking,
		Stealth:        a.cfg.Browser.Stealth,
	}, a.logger)
	eng, err := scraper.New(src, sink, scraper.Config{
		TargetURL: a.cfg.Scraper.TargetURL,
		RateLimit: a.cfg.Scraper.RateLimit,
		MaxItems:  a.cfg.Scraper.MaxItems,
		Profiles:  profiles,
	}, a.logger)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("scraper: %w", err)
	}
	return eng, nil
}
