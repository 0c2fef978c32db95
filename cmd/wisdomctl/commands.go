package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wisdom/api/internal/config"
	"wisdom/api/internal/logger"
	"wisdom/api/internal/metrics"
	"wisdom/api/internal/outbox"
	"wisdom/api/internal/scheduler"
	"wisdom/api/internal/search"
	"wisdom/api/internal/store"
	"wisdom/api/internal/util"
)

type env struct {
	cfg config.Config
	db  *sql.DB
	log zerolog.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(os.Stderr, "wisdomctl", cfg.LogLevel)
	db, err := store.OpenWithRetry(ctx, cfg.DatabaseURL, cfg.DBConnectWait)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, log: log}, nil
}

func (e *env) searchService() (*search.Service, func()) {
	var meili *search.Meili
	if strings.TrimSpace(e.cfg.MeiliURL) != "" {
		meili = search.NewMeili(e.cfg.MeiliURL, e.cfg.MeiliMasterKey, e.log)
	}
	closeFn := func() {
		if meili != nil {
			meili.Close()
		}
	}
	return search.NewService(meili, search.NewPgFTS(e.db), e.log), closeFn
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.db.Close()

			migrations, err := store.Migrations(e.cfg.MigrationsDir)
			if err != nil {
				return err
			}
			switch args[0] {
			case "up":
				err = store.ApplyMigrations(ctx, e.db, migrations)
			case "down":
				err = store.RollbackMigrations(ctx, e.db, migrations)
			default:
				return fmt.Errorf("unknown direction %q, want up or down", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", args[0])
			return nil
		},
	}
}

func reindexCmd() *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from Postgres",
		Long:  "Rebuilds the whole index, or with --thread queues one thread for the outbox worker.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.db.Close()

			if threadID != "" {
				if !util.IsUUID(threadID) {
					return fmt.Errorf("thread id %q is not a uuid", threadID)
				}
				if err := store.NewPostgresStore(e.db).EnqueueThreadSync(ctx, threadID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued thread %s for sync\n", threadID)
				return nil
			}

			svc, closeSearch := e.searchService()
			defer closeSearch()
			if !svc.IndexEnabled() {
				return errors.New("meilisearch is not configured")
			}
			count, err := svc.ReindexAllFromPG(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d threads\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "queue a single thread instead of a full rebuild")
	return cmd
}

type analyticsReport struct {
	UserID        string         `json:"userId" yaml:"user_id"`
	TotalThreads  int            `json:"totalThreads" yaml:"total_threads"`
	TopReacted    []reportThread `json:"topReacted" yaml:"top_reacted"`
	TopBookmarked []reportThread `json:"topBookmarked" yaml:"top_bookmarked"`
	TopForked     []reportThread `json:"topForked" yaml:"top_forked"`
	Activity      []reportMonth  `json:"activity" yaml:"activity"`
}

type reportThread struct {
	ThreadID string `json:"threadId" yaml:"thread_id"`
	Title    string `json:"title" yaml:"title"`
	Count    int    `json:"count" yaml:"count"`
}

type reportMonth struct {
	Month string `json:"month" yaml:"month"`
	Count int    `json:"count" yaml:"count"`
}

func newAnalyticsReport(userID string, analytics store.Analytics) analyticsReport {
	threads := func(counts []store.ThreadCount) []reportThread {
		out := make([]reportThread, 0, len(counts))
		for _, count := range counts {
			out = append(out, reportThread{ThreadID: count.ThreadID, Title: count.Title, Count: count.Count})
		}
		return out
	}
	report := analyticsReport{
		UserID:        userID,
		TotalThreads:  analytics.TotalThreads,
		TopReacted:    threads(analytics.TopReacted),
		TopBookmarked: threads(analytics.TopBookmarked),
		TopForked:     threads(analytics.TopForked),
	}
	for _, month := range analytics.Activity {
		report.Activity = append(report.Activity, reportMonth{
			Month: fmt.Sprintf("%04d-%02d", month.Year, int(month.Month)),
			Count: month.Count,
		})
	}
	return report
}

func writeReport(w io.Writer, format string, report analyticsReport) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown format %q, want yaml or json", format)
	}
}

func analyticsCmd() *cobra.Command {
	var userID, format string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print an author's engagement report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unknown format %q, want yaml or json", format)
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.db.Close()

			analytics, err := store.NewPostgresStore(e.db).AuthorAnalytics(ctx, userID, time.Now())
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), format, newAnalyticsReport(userID, analytics))
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "author id (required)")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func serveWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-worker",
		Short: "Run the search outbox worker and the reindex schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.db.Close()

			svc, closeSearch := e.searchService()
			defer closeSearch()

			worker := outbox.NewWorker(e.db, svc, outbox.Config{
				BatchSize: e.cfg.OutboxBatch,
				Interval:  e.cfg.OutboxInterval,
			}, e.log)
			reindex, err := scheduler.New("search-reindex", e.cfg.ReindexCron, func(ctx context.Context) error {
				_, err := svc.ReindexAllFromPG(ctx)
				metrics.ObserveReindex(err)
				return err
			}, e.log)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = worker.Run(ctx)
			}()
			go func() {
				defer wg.Done()
				_ = reindex.Run(ctx)
			}()
			wg.Wait()
			return nil
		},
	}
}
