package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

var ErrNoRows = errors.New("no data rows in file")

// ParseStatement reads a CSV bank statement with headers:
// date,amount,description plus optional account,payee,category.
// Every row must carry a parseable date and amount; any bad row fails the
// whole parse so the caller never applies a partial import.
func ParseStatement(r io.Reader) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := toIndex(headers)
	for _, k := range []string{"date", "amount", "description"} {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("missing required column: %s", k)
		}
	}

	var out []core.Transaction
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++

		date, err := parseDateFlexible(field(rec, col, "date"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		amount, err := parseAmount(field(rec, col, "amount"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		out = append(out, core.Transaction{
			Date:        date,
			Amount:      amount,
			Description: field(rec, col, "description"),
			Account:     field(rec, col, "account"),
			Payee:       field(rec, col, "payee"),
			Category:    field(rec, col, "category"),
		})
	}

	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// hasCategoryColumn reports whether the parsed rows carry meaningful category
// values: at least one row with a category that is neither empty nor the
// default bucket. Such a file is treated as pre-categorized.
func hasCategoryColumn(txs []core.Transaction) bool {
	for _, t := range txs {
		if t.Category != "" && t.Category != core.CategoryOther {
			return true
		}
	}
	return false
}

func toIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func field(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
}

func parseDateFlexible(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, core.ErrMissingDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// Strip time-of-day: the domain has calendar-date semantics only.
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, core.ErrMissingDate)
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, core.ErrInvalidAmount
	}
	// Accept both "1,234.56" (thousands comma) and "12,34" (decimal comma).
	normalized := s
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		normalized = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		normalized = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q: %w", s, core.ErrInvalidAmount)
	}
	return v, nil
}
