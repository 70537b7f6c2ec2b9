package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"conti/internal/core"
	"conti/internal/log"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": core.Categories()})
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.CategoryStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(stats))
	for _, st := range stats {
		out = append(out, map[string]any{
			"category":          st.Category,
			"transaction_count": st.TransactionCount,
			"total_expenses":    st.TotalExpenses,
			"total_income":      st.TotalIncome,
			"avg_amount":        st.AvgAmount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"category_stats": out})
}

type mappingJSON struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.ListMappings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]mappingJSON, 0, len(mappings))
	for _, m := range mappings {
		j := mappingJSON{
			ID:       m.ID,
			Type:     string(m.Type),
			Value:    m.Value,
			Category: m.Category,
		}
		if !m.CreatedAt.IsZero() {
			j.CreatedAt = m.CreatedAt.Format(time.RFC3339)
		}
		out = append(out, j)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mappings": out,
		"count":    len(out),
	})
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type     string `json:"type"`
		Value    string `json:"value"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := s.categorize.SaveMapping(r.Context(), core.MappingType(body.Type), body.Value, body.Category); err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Category mapping saved",
		log.FieldMappingType, body.Type,
		log.FieldMappingValue, body.Value,
		log.FieldCategory, body.Category)

	// Read the row back so the response carries the same id and timestamps a
	// subsequent listing will show.
	m, err := s.store.GetMapping(r.Context(), core.MappingType(body.Type), body.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := mappingJSON{
		ID:       m.ID,
		Type:     string(m.Type),
		Value:    m.Value,
		Category: m.Category,
	}
	if !m.CreatedAt.IsZero() {
		resp.CreatedAt = m.CreatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleClearMappings(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearMappings(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Category mappings cleared")
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// handleExportMappings buffers the CSV before sending any headers, so a
// storage failure still produces a proper error status.
func (s *Server) handleExportMappings(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.ingest.WriteMappingsCSV(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="category_mappings.csv"`)
	_, _ = w.Write(buf.Bytes())
}
