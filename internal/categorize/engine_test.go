package categorize

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewEngine(store), store
}

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func findByPayee(t *testing.T, store *storage.Store, payee string) core.Transaction {
	t.Helper()
	txs, err := store.ListTransactions(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	for _, tx := range txs {
		if tx.Payee == payee {
			return tx
		}
	}
	t.Fatalf("no transaction with payee %q", payee)
	return core.Transaction{}
}

func TestSuggest_IncomeDominates(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	// Even with a mapping for the payee, a positive amount is Income.
	if err := store.UpsertMapping(ctx, core.MappingPayee, "employer", "Shopping"); err != nil {
		t.Fatal(err)
	}

	got, err := engine.Suggest(ctx, 3000, "Employer", "Checking")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got.Category != core.CategoryIncome {
		t.Errorf("category = %q, want Income", got.Category)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got.Confidence)
	}
}

func TestSuggest_PayeeBeatsAccount(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if err := store.UpsertMapping(ctx, core.MappingPayee, "market", "Groceries"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertMapping(ctx, core.MappingAccount, "visa", "Shopping"); err != nil {
		t.Fatal(err)
	}

	got, err := engine.Suggest(ctx, -40, "Market", "Visa")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got.Category != "Groceries" {
		t.Errorf("category = %q, want Groceries (payee mapping wins)", got.Category)
	}
	if got.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", got.Confidence)
	}

	// Without a payee match the account mapping applies.
	got, err = engine.Suggest(ctx, -40, "Unknown Shop", "VISA")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got.Category != "Shopping" {
		t.Errorf("category = %q, want Shopping (account fallback)", got.Category)
	}
}

func TestSuggest_Default(t *testing.T) {
	engine, _ := newTestEngine(t)

	got, err := engine.Suggest(context.Background(), -12.50, "Nobody", "Nowhere")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got.Category != core.CategoryOther {
		t.Errorf("category = %q, want Other", got.Category)
	}
	if got.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", got.Confidence)
	}
}

func TestAutoCategorize_Idempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if _, err := store.ReplaceTransactions(ctx, []core.Transaction{
		{Date: date(2024, 1, 5), Amount: -40, Payee: "Market"},
		{Date: date(2024, 1, 6), Amount: -15, Payee: "Cafe"},
		{Date: date(2024, 1, 7), Amount: -30, Payee: "Nobody"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertMapping(ctx, core.MappingPayee, "market", "Groceries"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertMapping(ctx, core.MappingPayee, "cafe", "Eating out, Bars, Social"); err != nil {
		t.Fatal(err)
	}

	updated, err := engine.AutoCategorize(ctx)
	if err != nil {
		t.Fatalf("AutoCategorize: %v", err)
	}
	if updated != 2 {
		t.Errorf("first run updated %d rows, want 2", updated)
	}

	// Second consecutive run changes nothing.
	updated, err = engine.AutoCategorize(ctx)
	if err != nil {
		t.Fatalf("AutoCategorize (second): %v", err)
	}
	if updated != 0 {
		t.Errorf("second run updated %d rows, want 0", updated)
	}

	market := findByPayee(t, store, "Market")
	if market.Category != "Groceries" {
		t.Errorf("Market category = %q, want Groceries", market.Category)
	}
	if market.ManuallyCategorized {
		t.Error("auto-categorized row must not be marked manual")
	}
	if nobody := findByPayee(t, store, "Nobody"); nobody.Category != core.CategoryOther {
		t.Errorf("unmapped payee got category %q, want Other", nobody.Category)
	}
}

func TestAutoCategorize_SkipsManualRows(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if _, err := store.ReplaceTransactions(ctx, []core.Transaction{
		{Date: date(2024, 1, 5), Amount: -40, Payee: "Market"},
	}); err != nil {
		t.Fatal(err)
	}
	tx := findByPayee(t, store, "Market")

	if err := engine.Categorize(ctx, tx.ID, "Shopping"); err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	// A later conflicting payee mapping must not override the manual choice.
	if err := store.UpsertMapping(ctx, core.MappingPayee, "market", "Groceries"); err != nil {
		t.Fatal(err)
	}

	if updated, err := engine.AutoCategorize(ctx); err != nil || updated != 0 {
		t.Errorf("AutoCategorize = (%d, %v), want (0, nil)", updated, err)
	}
	if got := findByPayee(t, store, "Market"); got.Category != "Shopping" {
		t.Errorf("manual category overridden: %q", got.Category)
	}
}

func TestCategorize_LearnsPayeeMapping(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	// The §8 example flow: import, categorize, re-import, auto-categorize.
	if _, err := store.ReplaceTransactions(ctx, []core.Transaction{
		{Date: date(2024, 1, 5), Amount: -40, Payee: "Market"},
		{Date: date(2024, 1, 20), Amount: 3000, Payee: "Employer"},
	}); err != nil {
		t.Fatal(err)
	}
	tx := findByPayee(t, store, "Market")
	if err := engine.Categorize(ctx, tx.ID, "Groceries"); err != nil {
		t.Fatalf("Categorize: %v", err)
	}

	got := findByPayee(t, store, "Market")
	if got.Category != "Groceries" || !got.ManuallyCategorized {
		t.Errorf("after manual categorization: %+v", got)
	}

	mappings, err := store.ListMappings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 {
		t.Fatalf("got %d mappings, want 1", len(mappings))
	}
	if m := mappings[0]; m.Type != core.MappingPayee || m.Value != "market" || m.Category != "Groceries" {
		t.Errorf("learned mapping = %+v, want payee/market -> Groceries", m)
	}

	// New import with the same payee picks up the learned mapping.
	if _, err := store.ReplaceTransactions(ctx, []core.Transaction{
		{Date: date(2024, 2, 2), Amount: -22, Payee: "Market"},
	}); err != nil {
		t.Fatal(err)
	}
	if updated, err := engine.AutoCategorize(ctx); err != nil || updated != 1 {
		t.Fatalf("AutoCategorize = (%d, %v), want (1, nil)", updated, err)
	}
	if got := findByPayee(t, store, "Market"); got.Category != "Groceries" {
		t.Errorf("re-imported row category = %q, want Groceries", got.Category)
	}
}

func TestCategorize_AccountFallback(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if _, err := store.ReplaceTransactions(ctx, []core.Transaction{
		{Date: date(2024, 1, 5), Amount: -9.99, Account: "Visa Gold"},
	}); err != nil {
		t.Fatal(err)
	}
	txs, _ := store.ListTransactions(ctx, 0)
	if err := engine.Categorize(ctx, txs[0].ID, "Subscriptions"); err != nil {
		t.Fatalf("Categorize: %v", err)
	}

	mappings, _ := store.ListMappings(ctx)
	if len(mappings) != 1 {
		t.Fatalf("got %d mappings, want 1", len(mappings))
	}
	if m := mappings[0]; m.Type != core.MappingAccount || m.Value != "visa gold" {
		t.Errorf("mapping = %+v, want account fallback", m)
	}
}

func TestCategorize_NoMappingWithoutPayeeOrAccount(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if _, err := store.ReplaceTransactions(ctx, []core.Transaction{
		{Date: date(2024, 1, 5), Amount: -5, Description: "cash"},
	}); err != nil {
		t.Fatal(err)
	}
	txs, _ := store.ListTransactions(ctx, 0)
	if err := engine.Categorize(ctx, txs[0].ID, "Living"); err != nil {
		t.Fatalf("Categorize: %v", err)
	}

	if mappings, _ := store.ListMappings(ctx); len(mappings) != 0 {
		t.Errorf("mapping learned from empty payee and account: %+v", mappings)
	}
}

func TestCategorize_Errors(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if err := engine.Categorize(ctx, 1, "Rent"); !errors.Is(err, core.ErrInvalidCategory) {
		t.Errorf("invalid category: err = %v, want ErrInvalidCategory", err)
	}
	if err := engine.Categorize(ctx, 9999, "Groceries"); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Errorf("missing id: err = %v, want ErrTransactionNotFound", err)
	}

	_ = store
}

func TestSaveMapping_Validation(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	if err := engine.SaveMapping(ctx, "merchant", "x", "Groceries"); !errors.Is(err, core.ErrInvalidMappingType) {
		t.Errorf("bad type: err = %v", err)
	}
	if err := engine.SaveMapping(ctx, core.MappingPayee, "x", "Rent"); !errors.Is(err, core.ErrInvalidCategory) {
		t.Errorf("bad category: err = %v", err)
	}
	if err := engine.SaveMapping(ctx, core.MappingPayee, "Market", "Groceries"); err != nil {
		t.Errorf("valid mapping rejected: %v", err)
	}
	if n, _ := store.CountMappings(ctx); n != 1 {
		t.Errorf("mapping count = %d, want 1", n)
	}
}
