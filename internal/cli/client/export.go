package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/spf13/cobra"
)

// ExportCmd creates the export command.
func ExportCmd() *cobra.Command {
	var (
		fields    []string
		size      string
		hits      int64
		query     string
		since     time.Duration
		from, to  string
		delimiter string
		quote     string
		filename  string
		archive   bool
		out       string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching documents as CSV",
		Long: `Exports the selected fields of matching documents as CSV.

--size takes a positive number or "*" for the value of --hits. Without
--size five documents are exported. With --raw the matching hits are
printed as JSON instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sz, err := parseSize(size)
			if err != nil {
				return err
			}
			tr, err := parseTimeRange(since, from, to, time.Now())
			if err != nil {
				return err
			}

			req := domain.ExportRequest{
				Hits:           hits,
				SelectedFields: fields,
				Size:           sz,
				QueryString:    queryStringBody(query),
				Delimiter:      delimiter,
				Quote:          quote,
				Filename:       filename,
				Archive:        archive,
			}
			if tr != (domain.TimeRange{}) {
				req.Timestamp = &tr
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			defer closeOut()

			if raw {
				resp, err := api.Do(cmd.Context(), "POST", "/api/discover/export", req)
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}
				_, err = w.Write(resp.Body)
				return err
			}

			resp, err := api.Do(cmd.Context(), "POST", "/api/discover/export/csv", req)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			if _, err := w.Write(resp.Body); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}

			summary := fmt.Sprintf("export %s: %s, %s records, query %sms, build %sms",
				resp.Header.Get("X-Export-ID"),
				resp.Header.Get("X-Export-Outcome"),
				resp.Header.Get("X-Export-Records"),
				resp.Header.Get("X-Query-Latency"),
				resp.Header.Get("X-Build-Latency"))
			fmt.Fprintln(cmd.ErrOrStderr(), summary)
			if url := resp.Header.Get("X-Download-URL"); url != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "archived copy: %s\n", url)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Fields to export (comma separated)")
	cmd.Flags().StringVarP(&size, "size", "s", "", `Number of documents, or "*" for --hits`)
	cmd.Flags().Int64Var(&hits, "hits", 0, `Hit count "*" resolves to`)
	cmd.Flags().StringVarP(&query, "query", "q", "", "Lucene query string (default: all documents)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only documents newer than this (e.g. 15m, 24h)")
	cmd.Flags().StringVar(&from, "from", "", "Start of time range (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "End of time range (RFC 3339, default now)")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", `Field delimiter (default ",")`)
	cmd.Flags().StringVar(&quote, "quote", "", `Quote character (default '"')`)
	cmd.Flags().StringVar(&filename, "filename", "", "File name for the archived copy (default export.csv)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Keep a copy in object storage and print its link")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print matching hits as JSON instead of CSV")
	_ = cmd.MarkFlagRequired("fields")

	return cmd
}

// ExportsCmd lists the server's export audit log.
func ExportsCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List recent exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			path := "/api/discover/exports?limit=" + strconv.Itoa(limit)
			if cursor != "" {
				path += "&cursor=" + cursor
			}
			resp, err := api.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to list exports: %w", err)
			}

			var page exportLogPage
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse export list: %w", err)
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				data, _ := json.MarshalIndent(page, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			printExportLogs(cmd.OutOrStdout(), page)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

type exportLogEntry struct {
	ID             string    `json:"id"`
	Fields         []string  `json:"fields"`
	Outcome        string    `json:"outcome"`
	Records        int       `json:"records"`
	QueryLatencyMS int64     `json:"query_latency_ms"`
	BuildLatencyMS int64     `json:"build_latency_ms"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
}

type exportLogPage struct {
	Items   []exportLogEntry `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func printExportLogs(w io.Writer, page exportLogPage) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No exports recorded.")
		return
	}
	for _, e := range page.Items {
		archived := ""
		if e.Archived {
			archived = " [archived]"
		}
		fmt.Fprintf(w, "%s  %-9s %5d records  query %dms  build %dms  %s  %s%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Outcome, e.Records,
			e.QueryLatencyMS, e.BuildLatencyMS, e.ID, strings.Join(e.Fields, ","), archived)
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Fprintf(w, "\nMore results available. Use --cursor %s\n", page.Cursor)
	}
}

func parseSize(s string) (domain.Size, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return domain.Size{}, nil
	case "*":
		return domain.SizeAll(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return domain.Size{}, fmt.Errorf(`invalid --size %q: want a positive number or "*"`, s)
	}
	return domain.SizeOf(n), nil
}

// parseTimeRange turns --since or --from/--to into an epoch-millis range.
// No flags means the zero range, which the server treats as unbounded.
func parseTimeRange(since time.Duration, from, to string, now time.Time) (domain.TimeRange, error) {
	if since > 0 && from != "" {
		return domain.TimeRange{}, errors.New("--since and --from are mutually exclusive")
	}

	end := now
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = t
	}

	var start time.Time
	switch {
	case since > 0:
		start = end.Add(-since)
	case from != "":
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = t
	case to != "":
		return domain.TimeRange{}, errors.New("--to needs --from or --since")
	default:
		return domain.TimeRange{}, nil
	}

	if start.After(end) {
		return domain.TimeRange{}, errors.New("time range start is after its end")
	}
	return domain.TimeRange{Format: "epoch_millis", Gte: start.UnixMilli(), Lte: end.UnixMilli()}, nil
}

func queryStringBody(query string) json.RawMessage {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	body, _ := json.Marshal(map[string]any{"query": query, "analyze_wildcard": true})
	return body
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
