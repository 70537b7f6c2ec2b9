package core

import (
	"errors"
	"strings"
	"time"
)

const (
	CategoryOther      = "Other"
	CategoryIncome     = "Income"
	CategoryInvestment = "Investment"
)

const (
	MappingPayee   MappingType = "payee"
	MappingAccount MappingType = "account"
)

type (
	// MappingType says which transaction field a learned mapping keys on.
	MappingType string

	// Transaction is a single imported statement row. The sign of Amount is
	// the income/expense discriminator: positive is income, negative expense.
	Transaction struct {
		ID                  int64
		Date                time.Time
		Amount              float64
		Description         string
		Account             string
		Payee               string
		Category            string
		ManuallyCategorized bool
		CreatedAt           time.Time
		UpdatedAt           time.Time
	}

	// CategoryMapping is a learned rule: a case-folded payee or account value
	// mapped to a category. Keys are unique per (Type, Value).
	CategoryMapping struct {
		ID        int64
		Type      MappingType
		Value     string
		Category  string
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidMappingType  = errors.New("invalid mapping type")
	ErrEmptyMappingValue   = errors.New("empty mapping value")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMissingDate         = errors.New("missing date")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// categories is the fixed set every transaction and mapping must use.
// The exact strings are load-bearing: they are persisted and the UI keys
// its filters on them.
var categories = []string{
	CategoryOther,
	CategoryIncome,
	CategoryInvestment,
	"Living",
	"Groceries",
	"Eating out, Bars, Social",
	"Transport",
	"Sports, Wellness, Health",
	"Shopping",
	"Subscriptions",
}

// Categories returns the fixed category set in display order.
func Categories() []string {
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

// ValidCategory reports whether name is one of the fixed categories.
// Comparison is case-sensitive: persisted values always come from this set.
func ValidCategory(name string) bool {
	for _, c := range categories {
		if c == name {
			return true
		}
	}
	return false
}

func (t MappingType) Validate() error {
	switch t {
	case MappingPayee, MappingAccount:
		return nil
	default:
		return ErrInvalidMappingType
	}
}

// NormalizeMappingValue case-folds a payee/account value the way mappings
// are stored and looked up.
func NormalizeMappingValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func (m CategoryMapping) Validate() error {
	if err := m.Type.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Value) == "" {
		return ErrEmptyMappingValue
	}
	if !ValidCategory(m.Category) {
		return ErrInvalidCategory
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if t.Category != "" && !ValidCategory(t.Category) {
		return ErrInvalidCategory
	}
	return nil
}

// IsIncome reports whether the transaction is an inflow.
func (t Transaction) IsIncome() bool {
	return t.Amount > 0
}

// IsExpense reports whether the transaction is an outflow.
func (t Transaction) IsExpense() bool {
	return t.Amount < 0
}
