package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/discover/internal/config"
	"github.com/cloo-solutions/discover/internal/database"
	"github.com/cloo-solutions/discover/internal/jobs"
	"github.com/cloo-solutions/discover/internal/pagination"
	"github.com/cloo-solutions/discover/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func ExportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Inspect and prune the export audit log",
		Long:  "Inspect and prune the export audit log stored in DISCOVER_DATABASE_URL",
	}

	cmd.AddCommand(ExportsListCmd())
	cmd.AddCommand(ExportsPruneCmd())

	return cmd
}

func ExportsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runExportsList(cmd.Context(), outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runExportsList(ctx context.Context, outputFormat string, limit int, cursorStr string) error {
	var cursor *pagination.Cursor
	if cursorStr != "" {
		c, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			return err
		}
		cursor = c
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	page, err := repository.NewExportLogRepository(pool).ListWithCursor(ctx, cursor, pagination.ClampLimit(limit))
	if err != nil {
		return fmt.Errorf("failed to list exports: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]any, len(page.Items))
		for i, e := range page.Items {
			data[i] = map[string]any{
				"id":               e.ID,
				"scope":            e.Scope,
				"fields":           e.Fields,
				"size":             e.Size,
				"outcome":          e.Outcome,
				"records":          e.Records,
				"query_latency_ms": e.QueryLatencyMS,
				"build_latency_ms": e.BuildLatencyMS,
				"object_key":       e.ObjectKey,
				"created_at":       e.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(map[string]any{
			"items":    data,
			"cursor":   page.Cursor,
			"has_more": page.HasMore,
		}, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(page.Items) == 0 {
		fmt.Println("No exports recorded")
		return nil
	}
	for _, e := range page.Items {
		fmt.Printf("  %s  %-9s %5d records  query %dms  build %dms  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Outcome, e.Records, e.QueryLatencyMS, e.BuildLatencyMS, e.ID)
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

func ExportsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit entries older than the retention window",
		Long:  "Delete audit entries older than --older-than (default DISCOVER_RETENTION). Archived documents are not removed; the server's retention worker handles those.",
		RunE:  runExportsPrune,
	}

	cmd.Flags().Duration("older-than", 0, "Retention window (defaults to DISCOVER_RETENTION)")

	return cmd
}

func runExportsPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	retention, _ := cmd.Flags().GetDuration("older-than")
	if retention == 0 {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		retention = cfg.Retention
	}
	if retention <= 0 {
		return errors.New("retention window must be positive")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sweeper := jobs.NewRetentionSweeper(repository.NewExportLogRepository(pool), nil, retention)
	if err := sweeper.ProcessJobs(ctx); err != nil {
		return err
	}
	fmt.Printf("Pruned exports older than %s\n", time.Now().Add(-retention).UTC().Format(time.RFC3339))
	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return nil, errors.New("DISCOVER_DATABASE_URL is not set")
	}
	return database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
}
