// Package categorize assigns categories to transactions using learned
// payee/account mappings. Matching is an exact, case-insensitive lookup:
// predictable and auditable, no fuzzy scoring.
package categorize

import (
	"context"
	"fmt"
	"log/slog"

	"conti/internal/core"
	"conti/internal/storage"
)

// Engine is the categorization engine over a storage handle.
type Engine struct {
	store *storage.Store
}

func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store}
}

// Suggestion is a suggested category with a coarse confidence and the reason
// the suggestion was made.
type Suggestion struct {
	Category   string
	Confidence float64
	Reason     string
}

// mappingIndex holds the learned mappings keyed by case-folded value.
type mappingIndex struct {
	payee   map[string]string
	account map[string]string
}

func (e *Engine) loadMappings(ctx context.Context) (mappingIndex, error) {
	idx := mappingIndex{
		payee:   make(map[string]string),
		account: make(map[string]string),
	}
	mappings, err := e.store.ListMappings(ctx)
	if err != nil {
		return idx, fmt.Errorf("load mappings: %w", err)
	}
	for _, m := range mappings {
		switch m.Type {
		case core.MappingPayee:
			idx.payee[m.Value] = m.Category
		case core.MappingAccount:
			idx.account[m.Value] = m.Category
		}
	}
	return idx, nil
}

// lookup applies the payee-then-account precedence. Payee wins: it is the
// more specific key.
func (idx mappingIndex) lookup(payee, account string) (string, bool) {
	if payee != "" {
		if cat, ok := idx.payee[core.NormalizeMappingValue(payee)]; ok {
			return cat, true
		}
	}
	if account != "" {
		if cat, ok := idx.account[core.NormalizeMappingValue(account)]; ok {
			return cat, true
		}
	}
	return "", false
}

// Suggest proposes a category for a transaction's amount, payee and account.
// A positive amount is always Income; the sign dominates every mapping.
func (e *Engine) Suggest(ctx context.Context, amount float64, payee, account string) (Suggestion, error) {
	if amount > 0 {
		return Suggestion{
			Category:   core.CategoryIncome,
			Confidence: 0.9,
			Reason:     "positive amount indicates income",
		}, nil
	}

	idx, err := e.loadMappings(ctx)
	if err != nil {
		return Suggestion{}, err
	}
	if cat, ok := idx.lookup(payee, account); ok && cat != core.CategoryOther {
		return Suggestion{
			Category:   cat,
			Confidence: 0.8,
			Reason:     "based on learned patterns",
		}, nil
	}

	return Suggestion{
		Category:   core.CategoryOther,
		Confidence: 0.5,
		Reason:     "default suggestion",
	}, nil
}

// AutoCategorize applies learned mappings to every transaction that the user
// never touched and that still sits in the default bucket. Returns the number
// of rows changed. Idempotent: a second run with no intervening mutation
// changes nothing.
func (e *Engine) AutoCategorize(ctx context.Context) (int, error) {
	idx, err := e.loadMappings(ctx)
	if err != nil {
		return 0, err
	}

	candidates, err := e.store.AutoCategorizeCandidates(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, c := range candidates {
		cat, ok := idx.lookup(c.Payee, c.Account)
		if !ok || cat == core.CategoryOther {
			continue
		}
		if err := e.store.UpdateTransactionCategory(ctx, c.ID, cat, false); err != nil {
			return updated, fmt.Errorf("auto-categorize transaction %d: %w", c.ID, err)
		}
		updated++
	}

	slog.InfoContext(ctx, "Auto-categorization completed",
		"candidates", len(candidates), "updated", updated)
	return updated, nil
}

// Categorize records a manual categorization: the transaction's category is
// set, the row is marked manually categorized, and a mapping is learned from
// the payee (preferred) or the account (fallback) so future imports of the
// same counterparty categorize themselves.
func (e *Engine) Categorize(ctx context.Context, id int64, category string) error {
	if !core.ValidCategory(category) {
		return fmt.Errorf("category %q: %w", category, core.ErrInvalidCategory)
	}

	tx, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	if err := e.store.UpdateTransactionCategory(ctx, id, category, true); err != nil {
		return err
	}

	switch {
	case tx.Payee != "":
		if err := e.store.UpsertMapping(ctx, core.MappingPayee, tx.Payee, category); err != nil {
			return err
		}
	case tx.Account != "":
		if err := e.store.UpsertMapping(ctx, core.MappingAccount, tx.Account, category); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "Transaction manually categorized",
		"id", id, "category", category, "payee", tx.Payee, "account", tx.Account)
	return nil
}

// SaveMapping validates and stores an explicit user-created mapping.
func (e *Engine) SaveMapping(ctx context.Context, mappingType core.MappingType, value, category string) error {
	m := core.CategoryMapping{Type: mappingType, Value: value, Category: category}
	if err := m.Validate(); err != nil {
		return err
	}
	return e.store.UpsertMapping(ctx, mappingType, value, category)
}
