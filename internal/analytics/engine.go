// Package analytics computes read-only aggregate views over the stored
// transaction set. Nothing here mutates state; amounts accumulate in full
// float precision and are rounded only on the way out.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
)

// Engine computes aggregates over the current transaction set.
type Engine struct {
	store *storage.Store
	now   func() time.Time
}

func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Overview is the dashboard headline: totals, categorization progress and
// the stored date range.
type Overview struct {
	TotalTransactions     int
	TotalIncome           float64
	TotalExpenses         float64
	NetAmount             float64
	CategorizedPercentage float64
	StartDate             time.Time
	EndDate               time.Time
	HasData               bool
}

// MonthlyFlow is one calendar-month bucket of the income-vs-expenses series.
// Investment outflows are split out of Expenses into their own column.
type MonthlyFlow struct {
	Month      string // "2024-01"
	Label      string // "Jan 2024"
	Income     float64
	Expenses   float64
	Investment float64
	Net        float64
}

// CategoryShare is one category's slice of total expenses.
type CategoryShare struct {
	Category         string
	TotalAmount      float64
	TransactionCount int
	Percentage       float64
}

// DailyCumulative is a category's within-month running expense total on a day.
type DailyCumulative struct {
	Date             string
	CumulativeAmount float64
}

// CumulativeSeries carries the burn-down curves: per category, one point per
// calendar day of the window, resetting to zero at each month boundary.
type CumulativeSeries struct {
	Categories []string
	Dates      []string
	Series     map[string][]DailyCumulative
}

// TrendStats are coarse usage statistics over the whole transaction set.
type TrendStats struct {
	AvgTransactionsPerMonth float64
	MostFrequentCategory    string
	LargestExpense          float64
	LargestIncome           float64
	TotalMonths             int
	UniquePayees            int
	UniqueAccounts          int
}

// ScatterPoint is one expense transaction in the deep-dive listing.
type ScatterPoint struct {
	Category    string
	Date        string
	Amount      float64
	Payee       string
	Description string
}

// CategorySummary aggregates one category inside a deep-dive window.
type CategorySummary struct {
	Category         string
	TotalAmount      float64
	TransactionCount int
	AvgAmount        float64
}

// DeepDive is the drill-down view: transaction-level scatter data plus
// per-category summaries for a window, optionally restricted to a category.
type DeepDive struct {
	Scatter    []ScatterPoint
	Summaries  []CategorySummary
	Categories []string
	StartDate  string
	EndDate    string
}

// HasData reports whether any transactions are stored.
func (e *Engine) HasData(ctx context.Context) (bool, error) {
	count, err := e.store.CountTransactions(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (e *Engine) Overview(ctx context.Context) (Overview, error) {
	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return Overview{}, fmt.Errorf("load transactions: %w", err)
	}
	if len(txs) == 0 {
		return Overview{}, nil
	}

	var o Overview
	o.HasData = true
	o.TotalTransactions = len(txs)
	o.StartDate = txs[0].Date
	o.EndDate = txs[0].Date

	var net float64
	categorized := 0
	for _, t := range txs {
		net += t.Amount
		if t.IsIncome() {
			o.TotalIncome += t.Amount
		} else if t.IsExpense() {
			o.TotalExpenses += -t.Amount
		}
		if t.Category != core.CategoryOther {
			categorized++
		}
		if t.Date.Before(o.StartDate) {
			o.StartDate = t.Date
		}
		if t.Date.After(o.EndDate) {
			o.EndDate = t.Date
		}
	}

	o.TotalIncome = round2(o.TotalIncome)
	o.TotalExpenses = round2(o.TotalExpenses)
	o.NetAmount = round2(net)
	o.CategorizedPercentage = round1(float64(categorized) / float64(len(txs)) * 100)
	return o, nil
}

// IncomeVsExpenses partitions the last months calendar months (including the
// current one) into buckets. Every month in the window gets an entry, empty
// months zero-filled, ordered chronologically.
func (e *Engine) IncomeVsExpenses(ctx context.Context, months int) ([]MonthlyFlow, error) {
	if months < 1 {
		months = 1
	}
	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	start := e.windowStart(months)
	type bucket struct{ income, expenses, investment float64 }
	buckets := make(map[string]*bucket, months)

	for _, t := range txs {
		if t.Date.Before(start) {
			continue
		}
		key := t.Date.Format("2006-01")
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		switch {
		case t.IsIncome():
			b.income += t.Amount
		case t.IsExpense() && t.Category == core.CategoryInvestment:
			b.investment += -t.Amount
		case t.IsExpense():
			b.expenses += -t.Amount
		}
	}

	out := make([]MonthlyFlow, 0, months)
	for month := start; !month.After(e.currentMonth()); month = month.AddDate(0, 1, 0) {
		key := month.Format("2006-01")
		b := buckets[key]
		if b == nil {
			b = &bucket{}
		}
		out = append(out, MonthlyFlow{
			Month:      key,
			Label:      month.Format("Jan 2006"),
			Income:     round2(b.income),
			Expenses:   round2(b.expenses),
			Investment: round2(b.investment),
			Net:        round2(b.income - b.expenses - b.investment),
		})
	}
	return out, nil
}

// ExpensesByCategory groups expense transactions by category with each
// category's share of the total, sorted by amount descending. A months value
// of 0 means the full stored history.
func (e *Engine) ExpensesByCategory(ctx context.Context, months int) ([]CategoryShare, error) {
	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	var start time.Time
	if months > 0 {
		start = e.windowStart(months)
	}

	totals := map[string]*CategoryShare{}
	var grandTotal float64
	for _, t := range txs {
		if !t.IsExpense() {
			continue
		}
		if months > 0 && t.Date.Before(start) {
			continue
		}
		share := totals[t.Category]
		if share == nil {
			share = &CategoryShare{Category: t.Category}
			totals[t.Category] = share
		}
		share.TotalAmount += -t.Amount
		share.TransactionCount++
		grandTotal += -t.Amount
	}

	out := make([]CategoryShare, 0, len(totals))
	for _, share := range totals {
		if share.TotalAmount <= 0 {
			continue
		}
		share.Percentage = round1(share.TotalAmount / grandTotal * 100)
		share.TotalAmount = round2(share.TotalAmount)
		out = append(out, *share)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// CumulativeExpenses computes, for every calendar day of the window and every
// category with expenses in it, the running expense sum from the first day of
// that day's month through the day. The sum resets at each month boundary:
// these are within-month burn-down curves, not a global running total.
func (e *Engine) CumulativeExpenses(ctx context.Context, months int) (CumulativeSeries, error) {
	if months < 1 {
		months = 3
	}
	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return CumulativeSeries{}, fmt.Errorf("load transactions: %w", err)
	}

	start := e.windowStart(months)
	end := e.currentMonth().AddDate(0, 1, -1) // last day of the current month

	// Per-category, per-day expense totals inside the window.
	daily := map[string]map[string]float64{}
	for _, t := range txs {
		if !t.IsExpense() || t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		day := t.Date.Format("2006-01-02")
		if daily[t.Category] == nil {
			daily[t.Category] = map[string]float64{}
		}
		daily[t.Category][day] += -t.Amount
	}

	categories := make([]string, 0, len(daily))
	for cat := range daily {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	series := CumulativeSeries{
		Categories: categories,
		Series:     make(map[string][]DailyCumulative, len(categories)),
	}

	running := make(map[string]float64, len(categories))
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Day() == 1 {
			for cat := range running {
				running[cat] = 0
			}
		}
		ds := day.Format("2006-01-02")
		series.Dates = append(series.Dates, ds)
		for _, cat := range categories {
			running[cat] += daily[cat][ds]
			series.Series[cat] = append(series.Series[cat], DailyCumulative{
				Date:             ds,
				CumulativeAmount: round2(running[cat]),
			})
		}
	}
	return series, nil
}

func (e *Engine) Trends(ctx context.Context) (TrendStats, error) {
	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return TrendStats{}, fmt.Errorf("load transactions: %w", err)
	}
	if len(txs) == 0 {
		return TrendStats{}, nil
	}

	monthCounts := map[string]int{}
	categoryCounts := map[string]int{}
	payees := map[string]struct{}{}
	accounts := map[string]struct{}{}
	var st TrendStats

	for _, t := range txs {
		monthCounts[t.Date.Format("2006-01")]++
		categoryCounts[t.Category]++
		if t.Payee != "" {
			payees[t.Payee] = struct{}{}
		}
		if t.Account != "" {
			accounts[t.Account] = struct{}{}
		}
		if t.IsExpense() && -t.Amount > st.LargestExpense {
			st.LargestExpense = -t.Amount
		}
		if t.IsIncome() && t.Amount > st.LargestIncome {
			st.LargestIncome = t.Amount
		}
	}

	st.TotalMonths = len(monthCounts)
	st.AvgTransactionsPerMonth = round1(float64(len(txs)) / float64(len(monthCounts)))
	st.LargestExpense = round2(st.LargestExpense)
	st.LargestIncome = round2(st.LargestIncome)
	st.UniquePayees = len(payees)
	st.UniqueAccounts = len(accounts)

	best := -1
	for cat, n := range categoryCounts {
		if n > best || (n == best && cat < st.MostFrequentCategory) {
			best = n
			st.MostFrequentCategory = cat
		}
	}
	return st, nil
}

// DeepDive lists individual expense transactions and per-category summaries
// inside a window, optionally restricted to one category. category "" or
// "all" means every category. A months value of 0 uses the stored data range.
func (e *Engine) DeepDive(ctx context.Context, category string, months int) (DeepDive, error) {
	txs, err := e.store.ListTransactions(ctx, 0)
	if err != nil {
		return DeepDive{}, fmt.Errorf("load transactions: %w", err)
	}

	var expenses []core.Transaction
	for _, t := range txs {
		if t.IsExpense() {
			expenses = append(expenses, t)
		}
	}
	if len(expenses) == 0 {
		return DeepDive{}, nil
	}

	allCategories := map[string]struct{}{}
	for _, t := range expenses {
		allCategories[t.Category] = struct{}{}
	}

	var start, end time.Time
	if months > 0 {
		start = e.windowStart(months)
		end = e.currentMonth().AddDate(0, 1, -1)
	} else {
		start, end = expenses[0].Date, expenses[0].Date
		for _, t := range expenses {
			if t.Date.Before(start) {
				start = t.Date
			}
			if t.Date.After(end) {
				end = t.Date
			}
		}
	}

	dd := DeepDive{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}
	for cat := range allCategories {
		dd.Categories = append(dd.Categories, cat)
	}
	sort.Strings(dd.Categories)

	summaries := map[string]*CategorySummary{}
	for _, t := range expenses {
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		if category != "" && category != "all" && t.Category != category {
			continue
		}
		dd.Scatter = append(dd.Scatter, ScatterPoint{
			Category:    t.Category,
			Date:        t.Date.Format("2006-01-02"),
			Amount:      round2(-t.Amount),
			Payee:       t.Payee,
			Description: t.Description,
		})
		sum := summaries[t.Category]
		if sum == nil {
			sum = &CategorySummary{Category: t.Category}
			summaries[t.Category] = sum
		}
		sum.TotalAmount += -t.Amount
		sum.TransactionCount++
	}

	for _, sum := range summaries {
		sum.AvgAmount = round2(sum.TotalAmount / float64(sum.TransactionCount))
		sum.TotalAmount = round2(sum.TotalAmount)
		dd.Summaries = append(dd.Summaries, *sum)
	}
	sort.Slice(dd.Summaries, func(i, j int) bool {
		if dd.Summaries[i].TotalAmount != dd.Summaries[j].TotalAmount {
			return dd.Summaries[i].TotalAmount > dd.Summaries[j].TotalAmount
		}
		return dd.Summaries[i].Category < dd.Summaries[j].Category
	})
	return dd, nil
}

// currentMonth returns the first day of the current month.
func (e *Engine) currentMonth() time.Time {
	now := e.now()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// windowStart returns the first day of the oldest month in a trailing window
// of months calendar months, the current month included.
func (e *Engine) windowStart(months int) time.Time {
	return e.currentMonth().AddDate(0, -(months - 1), 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
