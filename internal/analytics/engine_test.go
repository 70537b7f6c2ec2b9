package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
)

// All window tests run against a clock frozen mid-March 2024, so a 3-month
// window spans January through March.
var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, txs []core.Transaction) *Engine {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if len(txs) > 0 {
		if _, err := store.ReplaceTransactions(context.Background(), txs); err != nil {
			t.Fatalf("ReplaceTransactions: %v", err)
		}
	}
	e := NewEngine(store)
	e.now = func() time.Time { return testNow }
	return e
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixtures() []core.Transaction {
	return []core.Transaction{
		{Date: day(2023, 12, 15), Amount: -999, Description: "tv", Account: "Checking", Payee: "Mall", Category: "Shopping"},
		{Date: day(2024, 1, 5), Amount: -40, Description: "weekly shop", Account: "Checking", Payee: "Market", Category: "Groceries"},
		{Date: day(2024, 1, 20), Amount: 3000, Description: "salary", Account: "Checking", Payee: "Employer", Category: "Income"},
		{Date: day(2024, 2, 10), Amount: -100, Description: "etf buy", Account: "Checking", Payee: "Broker", Category: "Investment"},
		{Date: day(2024, 3, 1), Amount: -20, Description: "metro pass", Account: "Checking", Payee: "Metro", Category: "Transport"},
	}
}

func TestHasData(t *testing.T) {
	e := newTestEngine(t, nil)
	if got, _ := e.HasData(context.Background()); got {
		t.Error("HasData = true on empty store")
	}

	e = newTestEngine(t, fixtures())
	if got, _ := e.HasData(context.Background()); !got {
		t.Error("HasData = false with stored transactions")
	}
}

func TestOverview(t *testing.T) {
	e := newTestEngine(t, fixtures())

	o, err := e.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !o.HasData || o.TotalTransactions != 5 {
		t.Errorf("HasData/TotalTransactions = %v/%d", o.HasData, o.TotalTransactions)
	}
	if o.TotalIncome != 3000 {
		t.Errorf("TotalIncome = %v, want 3000", o.TotalIncome)
	}
	if o.TotalExpenses != 1159 {
		t.Errorf("TotalExpenses = %v, want 1159", o.TotalExpenses)
	}
	if o.NetAmount != 1841 {
		t.Errorf("NetAmount = %v, want 1841", o.NetAmount)
	}
	if o.CategorizedPercentage != 100 {
		t.Errorf("CategorizedPercentage = %v, want 100", o.CategorizedPercentage)
	}
	if !o.StartDate.Equal(day(2023, 12, 15)) || !o.EndDate.Equal(day(2024, 3, 1)) {
		t.Errorf("date range = %v .. %v", o.StartDate, o.EndDate)
	}
}

func TestOverview_Empty(t *testing.T) {
	e := newTestEngine(t, nil)
	o, err := e.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if o.HasData || o.TotalTransactions != 0 {
		t.Errorf("empty overview = %+v", o)
	}
}

func TestOverview_PartiallyCategorized(t *testing.T) {
	e := newTestEngine(t, []core.Transaction{
		{Date: day(2024, 1, 1), Amount: -10, Description: "a", Category: "Groceries"},
		{Date: day(2024, 1, 2), Amount: -10, Description: "b", Category: core.CategoryOther},
		{Date: day(2024, 1, 3), Amount: -10, Description: "c", Category: core.CategoryOther},
	})
	o, _ := e.Overview(context.Background())
	if o.CategorizedPercentage != 33.3 {
		t.Errorf("CategorizedPercentage = %v, want 33.3", o.CategorizedPercentage)
	}
}

func TestIncomeVsExpenses(t *testing.T) {
	e := newTestEngine(t, fixtures())

	flows, err := e.IncomeVsExpenses(context.Background(), 3)
	if err != nil {
		t.Fatalf("IncomeVsExpenses: %v", err)
	}
	if len(flows) != 3 {
		t.Fatalf("got %d months, want 3", len(flows))
	}

	jan := flows[0]
	if jan.Month != "2024-01" || jan.Label != "Jan 2024" {
		t.Errorf("month/label = %q/%q", jan.Month, jan.Label)
	}
	if jan.Income != 3000 || jan.Expenses != 40 || jan.Investment != 0 || jan.Net != 2960 {
		t.Errorf("January = %+v", jan)
	}

	// February has only the Investment outflow: it must land in its own
	// column, not in Expenses.
	feb := flows[1]
	if feb.Expenses != 0 || feb.Investment != 100 || feb.Net != -100 {
		t.Errorf("February = %+v", feb)
	}

	mar := flows[2]
	if mar.Month != "2024-03" || mar.Expenses != 20 || mar.Net != -20 {
		t.Errorf("March = %+v", mar)
	}

	// December's Shopping expense is outside the 3-month window.
	for _, f := range flows {
		if f.Month == "2023-12" {
			t.Error("window leaked into December")
		}
	}
}

func TestIncomeVsExpenses_ZeroFillsEmptyMonths(t *testing.T) {
	e := newTestEngine(t, []core.Transaction{
		{Date: day(2024, 1, 5), Amount: -40, Description: "shop", Category: "Groceries"},
	})

	flows, err := e.IncomeVsExpenses(context.Background(), 6)
	if err != nil {
		t.Fatalf("IncomeVsExpenses: %v", err)
	}
	if len(flows) != 6 {
		t.Fatalf("got %d months, want 6", len(flows))
	}
	if flows[0].Month != "2023-10" || flows[5].Month != "2024-03" {
		t.Errorf("window = %s .. %s", flows[0].Month, flows[5].Month)
	}
	for _, f := range flows {
		if f.Month == "2024-01" {
			continue
		}
		if f.Income != 0 || f.Expenses != 0 || f.Investment != 0 || f.Net != 0 {
			t.Errorf("month %s not zero-filled: %+v", f.Month, f)
		}
	}
}

func TestExpensesByCategory(t *testing.T) {
	e := newTestEngine(t, fixtures())

	// Full history: income excluded, sorted by amount descending.
	all, err := e.ExpensesByCategory(context.Background(), 0)
	if err != nil {
		t.Fatalf("ExpensesByCategory: %v", err)
	}
	wantOrder := []string{"Shopping", "Investment", "Groceries", "Transport"}
	if len(all) != len(wantOrder) {
		t.Fatalf("got %d categories, want %d", len(all), len(wantOrder))
	}
	for i, want := range wantOrder {
		if all[i].Category != want {
			t.Errorf("position %d = %q, want %q", i, all[i].Category, want)
		}
	}
	if all[0].TotalAmount != 999 || all[0].TransactionCount != 1 {
		t.Errorf("Shopping = %+v", all[0])
	}
	if all[0].Percentage != 86.2 { // 999 / 1159
		t.Errorf("Shopping percentage = %v, want 86.2", all[0].Percentage)
	}

	// Windowed: December's Shopping row falls out.
	windowed, err := e.ExpensesByCategory(context.Background(), 3)
	if err != nil {
		t.Fatalf("ExpensesByCategory(3): %v", err)
	}
	for _, share := range windowed {
		if share.Category == "Shopping" {
			t.Error("Shopping should be outside the 3-month window")
		}
	}
	if len(windowed) != 3 || windowed[0].Category != "Investment" {
		t.Errorf("windowed breakdown = %+v", windowed)
	}
}

func TestCumulativeExpenses(t *testing.T) {
	e := newTestEngine(t, []core.Transaction{
		{Date: day(2024, 1, 5), Amount: -40, Description: "shop", Category: "Groceries"},
		{Date: day(2024, 1, 10), Amount: -25, Description: "shop again", Category: "Groceries"},
		{Date: day(2024, 2, 3), Amount: -30, Description: "feb shop", Category: "Groceries"},
		{Date: day(2024, 2, 3), Amount: -15, Description: "bus", Category: "Transport"},
	})

	series, err := e.CumulativeExpenses(context.Background(), 3)
	if err != nil {
		t.Fatalf("CumulativeExpenses: %v", err)
	}
	if len(series.Categories) != 2 || series.Categories[0] != "Groceries" || series.Categories[1] != "Transport" {
		t.Fatalf("categories = %v", series.Categories)
	}

	// Jan + Feb(leap) + Mar = 91 calendar days.
	if len(series.Dates) != 91 {
		t.Fatalf("got %d days, want 91", len(series.Dates))
	}
	if series.Dates[0] != "2024-01-01" || series.Dates[90] != "2024-03-31" {
		t.Errorf("date range = %s .. %s", series.Dates[0], series.Dates[90])
	}

	groceries := series.Series["Groceries"]
	at := func(date string) float64 {
		for i, d := range series.Dates {
			if d == date {
				return groceries[i].CumulativeAmount
			}
		}
		t.Fatalf("date %s not in series", date)
		return 0
	}

	if got := at("2024-01-04"); got != 0 {
		t.Errorf("before first expense = %v, want 0", got)
	}
	if got := at("2024-01-05"); got != 40 {
		t.Errorf("on first expense = %v, want 40", got)
	}
	if got := at("2024-01-31"); got != 65 {
		t.Errorf("end of January = %v, want 65", got)
	}
	// The running sum resets at the month boundary.
	if got := at("2024-02-01"); got != 0 {
		t.Errorf("first of February = %v, want 0 after reset", got)
	}
	if got := at("2024-02-03"); got != 30 {
		t.Errorf("after February expense = %v, want 30", got)
	}
	if got := at("2024-03-31"); got != 0 {
		t.Errorf("empty March = %v, want 0", got)
	}
}

func TestTrends(t *testing.T) {
	e := newTestEngine(t, fixtures())

	st, err := e.Trends(context.Background())
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	if st.TotalMonths != 4 {
		t.Errorf("TotalMonths = %d, want 4", st.TotalMonths)
	}
	if st.AvgTransactionsPerMonth != 1.3 { // 5 / 4
		t.Errorf("AvgTransactionsPerMonth = %v, want 1.3", st.AvgTransactionsPerMonth)
	}
	if st.LargestExpense != 999 || st.LargestIncome != 3000 {
		t.Errorf("largest expense/income = %v/%v", st.LargestExpense, st.LargestIncome)
	}
	if st.UniquePayees != 5 || st.UniqueAccounts != 1 {
		t.Errorf("unique payees/accounts = %d/%d", st.UniquePayees, st.UniqueAccounts)
	}
	// All categories appear once; ties break alphabetically.
	if st.MostFrequentCategory != "Groceries" {
		t.Errorf("MostFrequentCategory = %q", st.MostFrequentCategory)
	}
}

func TestTrends_Empty(t *testing.T) {
	e := newTestEngine(t, nil)
	st, err := e.Trends(context.Background())
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	if st.TotalMonths != 0 || st.MostFrequentCategory != "" {
		t.Errorf("empty trends = %+v", st)
	}
}

func TestDeepDive(t *testing.T) {
	e := newTestEngine(t, fixtures())

	dd, err := e.DeepDive(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("DeepDive: %v", err)
	}
	if dd.StartDate != "2024-01-01" || dd.EndDate != "2024-03-31" {
		t.Errorf("window = %s .. %s", dd.StartDate, dd.EndDate)
	}
	// Categories list covers every expense category in the store, even those
	// outside the window, so the UI can offer them as filters.
	wantCats := []string{"Groceries", "Investment", "Shopping", "Transport"}
	if len(dd.Categories) != len(wantCats) {
		t.Fatalf("categories = %v", dd.Categories)
	}
	for i, want := range wantCats {
		if dd.Categories[i] != want {
			t.Errorf("categories[%d] = %q, want %q", i, dd.Categories[i], want)
		}
	}

	// Window holds three expenses; income rows never appear.
	if len(dd.Scatter) != 3 {
		t.Errorf("scatter rows = %d, want 3", len(dd.Scatter))
	}
	for _, p := range dd.Scatter {
		if p.Amount <= 0 {
			t.Errorf("scatter amount not positive: %+v", p)
		}
	}

	if len(dd.Summaries) != 3 || dd.Summaries[0].Category != "Investment" {
		t.Fatalf("summaries = %+v", dd.Summaries)
	}
	inv := dd.Summaries[0]
	if inv.TotalAmount != 100 || inv.TransactionCount != 1 || inv.AvgAmount != 100 {
		t.Errorf("Investment summary = %+v", inv)
	}
}

func TestDeepDive_SingleCategory(t *testing.T) {
	e := newTestEngine(t, fixtures())

	dd, err := e.DeepDive(context.Background(), "Groceries", 3)
	if err != nil {
		t.Fatalf("DeepDive: %v", err)
	}
	if len(dd.Scatter) != 1 || dd.Scatter[0].Payee != "Market" {
		t.Errorf("scatter = %+v", dd.Scatter)
	}
	if len(dd.Summaries) != 1 || dd.Summaries[0].Category != "Groceries" {
		t.Errorf("summaries = %+v", dd.Summaries)
	}
}

func TestDeepDive_FullRange(t *testing.T) {
	e := newTestEngine(t, fixtures())

	dd, err := e.DeepDive(context.Background(), "all", 0)
	if err != nil {
		t.Fatalf("DeepDive: %v", err)
	}
	// Without a window the range spans the stored expense dates.
	if dd.StartDate != "2023-12-15" || dd.EndDate != "2024-03-01" {
		t.Errorf("range = %s .. %s", dd.StartDate, dd.EndDate)
	}
	if len(dd.Scatter) != 4 {
		t.Errorf("scatter rows = %d, want 4", len(dd.Scatter))
	}
}
