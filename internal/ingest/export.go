package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteTransactionsCSV streams the full transaction set as CSV, with the
// same column names Import accepts so an exported file round-trips.
func (s *Service) WriteTransactionsCSV(ctx context.Context, w io.Writer) error {
	txs, err := s.store.ListTransactions(ctx, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "date", "amount", "description", "account", "payee", "category", "is_manually_categorized"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		rec := []string{
			strconv.FormatInt(t.ID, 10),
			t.Date.Format("2006-01-02"),
			strconv.FormatFloat(t.Amount, 'f', 2, 64),
			t.Description,
			t.Account,
			t.Payee,
			t.Category,
			strconv.FormatBool(t.ManuallyCategorized),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMappingsCSV streams every learned category mapping as CSV.
func (s *Service) WriteMappingsCSV(ctx context.Context, w io.Writer) error {
	mappings, err := s.store.ListMappings(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"type", "value", "category"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range mappings {
		if err := cw.Write([]string{string(m.Type), m.Value, m.Category}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
