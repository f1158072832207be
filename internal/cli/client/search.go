package client

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/service"
	"github.com/spf13/cobra"
)

// SearchRequest mirrors the body of POST /api/discover/search.
type SearchRequest struct {
	QueryString json.RawMessage   `json:"query_string,omitempty"`
	Timestamp   *domain.TimeRange `json:"timestamp,omitempty"`
	Sort        []string          `json:"sort,omitempty"`
	SampleSize  int               `json:"sample_size,omitempty"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		since    time.Duration
		from, to string
		sortBy   []string
		sample   int
		columns  []string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a live search",
		Long: `Runs one segmented search over the default index pattern and prints the
sampled rows, the hit count and the most common fields.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			}

			tr, err := parseTimeRange(since, from, to, time.Now())
			if err != nil {
				return err
			}
			req := SearchRequest{
				QueryString: queryStringBody(query),
				Sort:        sortBy,
				SampleSize:  sample,
			}
			if tr != (domain.TimeRange{}) {
				req.Timestamp = &tr
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post(cmd.Context(), "/api/discover/search", req)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			var out service.SearchOutput
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				return fmt.Errorf("failed to parse search results: %w", err)
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				data, _ := json.MarshalIndent(out, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			printSearch(cmd.OutOrStdout(), &out, columns)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only documents newer than this (e.g. 15m, 24h)")
	cmd.Flags().StringVar(&from, "from", "", "Start of time range (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "End of time range (RFC 3339, default now)")
	cmd.Flags().StringSliceVar(&sortBy, "sort", nil, "Sort field and direction, e.g. --sort @timestamp,asc")
	cmd.Flags().IntVarP(&sample, "sample", "n", 0, "Maximum rows to keep (server default when 0)")
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "Fields to print per row (default: top fields)")

	return cmd
}

const defaultColumns = 4

func printSearch(w io.Writer, out *service.SearchOutput, columns []string) {
	switch out.State {
	case domain.ResultNoResults:
		fmt.Fprintln(w, "No results found.")
		printFailures(w, out)
		return
	case domain.ResultLoading:
		fmt.Fprintln(w, "Search did not settle.")
		return
	}

	if len(columns) == 0 {
		columns = topFields(out.FieldCounts, defaultColumns)
	}

	fmt.Fprintf(w, "%d hits, showing %d\n\n", out.Hits, len(out.Rows))
	fmt.Fprintln(w, strings.Join(append([]string{"_index"}, columns...), "\t"))
	for _, row := range out.Rows {
		cells := []string{row.Index}
		for _, col := range columns {
			v, ok := row.Lookup(col)
			if !ok {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, fmt.Sprint(v))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	printFailures(w, out)
}

func printFailures(w io.Writer, out *service.SearchOutput) {
	if out.FailureCount == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d shard failures:\n", out.FailureCount)
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  %s[%d]: %s\n", f.Index, f.Shard, f.Reason)
	}
	if hidden := out.FailureCount - len(out.Failures); hidden > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", hidden)
	}
}

// topFields returns the n most frequent fields, ties broken by name.
func topFields(counts map[string]int, n int) []string {
	fields := make([]string, 0, len(counts))
	for f := range counts {
		if strings.HasPrefix(f, "_") {
			continue
		}
		fields = append(fields, f)
	}
	slices.SortFunc(fields, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}
