package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"conti/internal/core"
	"conti/internal/log"
)

type transactionJSON struct {
	ID                    int64   `json:"id"`
	Date                  string  `json:"date"`
	Amount                float64 `json:"amount"`
	Description           string  `json:"description"`
	Account               string  `json:"account"`
	Payee                 string  `json:"payee"`
	Category              string  `json:"category"`
	IsManuallyCategorized bool    `json:"is_manually_categorized"`
	CreatedAt             string  `json:"created_at,omitempty"`
	UpdatedAt             string  `json:"updated_at,omitempty"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	j := transactionJSON{
		ID:                    t.ID,
		Date:                  t.Date.Format("2006-01-02"),
		Amount:                t.Amount,
		Description:           t.Description,
		Account:               t.Account,
		Payee:                 t.Payee,
		Category:              t.Category,
		IsManuallyCategorized: t.ManuallyCategorized,
	}
	if !t.CreatedAt.IsZero() {
		j.CreatedAt = t.CreatedAt.Format(time.RFC3339)
	}
	if !t.UpdatedAt.IsZero() {
		j.UpdatedAt = t.UpdatedAt.Format(time.RFC3339)
	}
	return j
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var txs []core.Transaction
	if r.URL.Query().Get("uncategorized_only") == "true" {
		txs, err = s.store.ListUncategorized(r.Context())
		if err == nil && limit > 0 && len(txs) > limit {
			txs = txs[:limit]
		}
	} else {
		txs, err = s.store.ListTransactions(r.Context(), limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"count":        len(out),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id"})
		return
	}

	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleUpdateTransactionCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id"})
		return
	}

	var body struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := s.categorize.Categorize(r.Context(), id, body.Category); err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction categorized",
		log.FieldTransactionID, id,
		log.FieldCategory, body.Category)

	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleSuggestCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id"})
		return
	}

	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	suggestion, err := s.categorize.Suggest(r.Context(), tx.Amount, tx.Payee, tx.Account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": id,
		"category":       suggestion.Category,
		"confidence":     suggestion.Confidence,
		"reason":         suggestion.Reason,
	})
}

func (s *Server) handleAutoCategorize(w http.ResponseWriter, r *http.Request) {
	n, err := s.categorize.AutoCategorize(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Auto-categorize finished",
		log.FieldRowCount, n)
	writeJSON(w, http.StatusOK, map[string]any{"categorized_count": n})
}

func (s *Server) handleTransactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DatabaseStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_transactions":     stats.TotalTransactions,
		"manually_categorized":   stats.ManuallyCategorized,
		"auto_categorized":       stats.AutoCategorized,
		"uncategorized":          stats.Uncategorized,
		"total_category_mappings": stats.TotalMappings,
	})
}

// handleExportTransactions buffers the CSV before sending any headers, so a
// storage failure still produces a proper error status.
func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.ingest.WriteTransactionsCSV(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	_, _ = w.Write(buf.Bytes())
}
