package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fabricmap/core-go/internal/config"
	"fabricmap/core-go/internal/db"
	"fabricmap/core-go/internal/httpapi"
	"fabricmap/core-go/internal/mapsync"
	"fabricmap/core-go/internal/metrics"
	"fabricmap/core-go/internal/zabbix"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Synchronize periodically and expose the admin API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), loadSettings(), serveSettings{
			Addr:        viper.GetString("http-addr"),
			DatabaseURL: viper.GetString("database-url"),
			Interval:    viper.GetDuration("interval"),
		})
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("http-addr", ":8081", "admin API listen address")
	f.String("database-url", "", "Postgres URL for run history (optional)")
	f.Duration("interval", 15*time.Minute, "time between runs, 0 to sync only on POST /api/v1/sync")

	if err := viper.BindPFlags(f); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}

type serveSettings struct {
	Addr        string
	DatabaseURL string
	Interval    time.Duration
}

func runServe(ctx context.Context, s settings, ss serveSettings) error {
	if err := s.validate(); err != nil {
		return err
	}
	if ss.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", ss.Interval)
	}
	logger := httpapi.NewLogger(s.LogLevel, s.LogFormat)

	// The document is reloaded before every run; this first load only
	// rejects a broken document at startup and picks the icon names.
	doc, err := s.loadDocument()
	if err != nil {
		return err
	}

	var pool *db.Pool
	if ss.DatabaseURL != "" {
		p, err := db.Open(ctx, ss.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer p.Close()
		if err := p.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("prepare database schema: %w", err)
		}
		pool = p
	}

	client, err := openSession(ctx, logger, s)
	if err != nil {
		return err
	}
	defer closeSession(ctx, logger, client)

	m := metrics.New()
	opts := mapsync.Options{
		KeepBorderLeafPair: s.KeepBorderLeafPair,
		Metrics:            m,
	}
	if pool != nil {
		opts.Store = pool.Queries()
	}
	syncer := mapsync.New(logger, zabbix.NewRegistry(client, iconNames(doc)), opts)
	scheduler := mapsync.NewScheduler(logger, syncer, func() (*config.Document, error) {
		return s.loadDocument()
	}, mapsync.SchedulerOptions{Interval: ss.Interval})
	go scheduler.Run(ctx)

	h := httpapi.NewHandler(logger, pool, scheduler, m)
	srv := &http.Server{
		Addr:              ss.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ss.Addr).Dur("interval", ss.Interval).Msg("mapsync listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
	return nil
}
