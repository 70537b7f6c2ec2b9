package http

import (
	"net/http"
)

func (s *Server) handleHasData(w http.ResponseWriter, r *http.Request) {
	hasData, err := s.analytics.HasData(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"has_data": hasData})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	o, err := s.analytics.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"has_data":               o.HasData,
		"total_transactions":     o.TotalTransactions,
		"total_income":           o.TotalIncome,
		"total_expenses":         o.TotalExpenses,
		"net_amount":             o.NetAmount,
		"categorized_percentage": o.CategorizedPercentage,
	}
	if o.HasData {
		resp["start_date"] = o.StartDate.Format("2006-01-02")
		resp["end_date"] = o.EndDate.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIncomeVsExpenses(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", 12)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	flows, err := s.analytics.IncomeVsExpenses(r.Context(), months)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(flows))
	for _, f := range flows {
		out = append(out, map[string]any{
			"month":      f.Month,
			"label":      f.Label,
			"income":     f.Income,
			"expenses":   f.Expenses,
			"investment": f.Investment,
			"net":        f.Net,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": out})
}

func (s *Server) handleExpensesByCategory(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	shares, err := s.analytics.ExpensesByCategory(r.Context(), months)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(shares))
	for _, share := range shares {
		out = append(out, map[string]any{
			"category":          share.Category,
			"total_amount":      share.TotalAmount,
			"transaction_count": share.TransactionCount,
			"percentage":        share.Percentage,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleCumulativeExpenses(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", 3)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	series, err := s.analytics.CumulativeExpenses(r.Context(), months)
	if err != nil {
		writeError(w, r, err)
		return
	}

	seriesOut := make(map[string][]map[string]any, len(series.Categories))
	for cat, points := range series.Series {
		rows := make([]map[string]any, 0, len(points))
		for _, p := range points {
			rows = append(rows, map[string]any{
				"date":              p.Date,
				"cumulative_amount": p.CumulativeAmount,
			})
		}
		seriesOut[cat] = rows
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": series.Categories,
		"dates":      series.Dates,
		"series":     seriesOut,
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	st, err := s.analytics.Trends(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"avg_transactions_per_month": st.AvgTransactionsPerMonth,
		"most_frequent_category":     st.MostFrequentCategory,
		"largest_expense":            st.LargestExpense,
		"largest_income":             st.LargestIncome,
		"total_months":               st.TotalMonths,
		"unique_payees":              st.UniquePayees,
		"unique_accounts":            st.UniqueAccounts,
	})
}

func (s *Server) handleDeepDive(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	category := r.URL.Query().Get("category")

	dd, err := s.analytics.DeepDive(r.Context(), category, months)
	if err != nil {
		writeError(w, r, err)
		return
	}

	scatter := make([]map[string]any, 0, len(dd.Scatter))
	for _, p := range dd.Scatter {
		scatter = append(scatter, map[string]any{
			"category":    p.Category,
			"date":        p.Date,
			"amount":      p.Amount,
			"payee":       p.Payee,
			"description": p.Description,
		})
	}
	summaries := make([]map[string]any, 0, len(dd.Summaries))
	for _, sum := range dd.Summaries {
		summaries = append(summaries, map[string]any{
			"category":          sum.Category,
			"total_amount":      sum.TotalAmount,
			"transaction_count": sum.TransactionCount,
			"avg_amount":        sum.AvgAmount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scatter":    scatter,
		"summaries":  summaries,
		"categories": dd.Categories,
		"start_date": dd.StartDate,
		"end_date":   dd.EndDate,
	})
}
