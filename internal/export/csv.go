package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cloo-solutions/discover/internal/domain"
)

const (
	DefaultDelimiter = ","
	DefaultQuote     = `"`
	DefaultFilename  = "export.csv"
)

// CSVOptions controls serialization. Zero values take the defaults.
type CSVOptions struct {
	Delimiter string
	Quote     string
}

func (o CSVOptions) normalize() (CSVOptions, error) {
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.Quote == "" {
		o.Quote = DefaultQuote
	}
	if strings.ContainsAny(o.Delimiter, "\r\n") || strings.ContainsAny(o.Quote, "\r\n") {
		return o, domain.ErrInvalidDelimiter
	}
	return o, nil
}

// WriteCSV writes a header of fields followed by one row per hit. Every row
// has exactly len(fields) quoted values; a missing or null value is written
// as an empty quoted value. It returns the number of rows written.
func WriteCSV(w io.Writer, fields []string, hits []*domain.Hit, opts CSVOptions) (int, error) {
	opts, err := opts.normalize()
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(fields, opts.Delimiter) + "\n"); err != nil {
		return 0, err
	}

	escaped := opts.Quote + opts.Quote
	rows := 0
	for _, h := range hits {
		if h == nil {
			continue
		}
		for i, f := range fields {
			if i > 0 {
				bw.WriteString(opts.Delimiter)
			}
			v, _ := h.Lookup(f)
			bw.WriteString(opts.Quote)
			bw.WriteString(strings.ReplaceAll(formatValue(v), opts.Quote, escaped))
			bw.WriteString(opts.Quote)
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return rows, err
		}
		rows++
	}

	if err := bw.Flush(); err != nil {
		return rows, fmt.Errorf("failed to write csv: %w", err)
	}
	return rows, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
