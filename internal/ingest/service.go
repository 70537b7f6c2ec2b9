// Package ingest validates uploaded statements and replaces the stored
// transaction set with them.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"conti/internal/categorize"
	"conti/internal/core"
	"conti/internal/storage"
)

const lastFilenameFile = "last_uploaded_filename.txt"

// Service orchestrates statement imports: parse, validate, replace-all,
// then auto-categorize when the file carried no categories of its own.
type Service struct {
	store      *storage.Store
	categorize *categorize.Engine
	dataDir    string
}

func NewService(store *storage.Store, engine *categorize.Engine, dataDir string) *Service {
	return &Service{store: store, categorize: engine, dataDir: dataDir}
}

// ImportResult summarizes one completed import.
type ImportResult struct {
	Inserted          int
	AutoCategorized   int
	HasCategoryColumn bool
}

// Import parses the statement, validates every row, then atomically replaces
// the stored transaction set. Validation failures leave the stored data
// untouched. When the file carries its own categories they are trusted;
// otherwise every row starts as Other and the learned mappings are applied
// once after insert.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) (ImportResult, error) {
	txs, err := ParseStatement(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse statement: %w", err)
	}

	preCategorized := hasCategoryColumn(txs)
	for i := range txs {
		if preCategorized {
			if txs[i].Category == "" {
				txs[i].Category = core.CategoryOther
			}
		} else {
			txs[i].Category = core.CategoryOther
		}
	}

	inserted, err := s.store.ReplaceTransactions(ctx, txs)
	if err != nil {
		return ImportResult{}, fmt.Errorf("replace transactions: %w", err)
	}

	autoCategorized := 0
	if !preCategorized {
		autoCategorized, err = s.categorize.AutoCategorize(ctx)
		if err != nil {
			return ImportResult{}, fmt.Errorf("auto-categorize after import: %w", err)
		}
	}

	// Best effort; a failure here must not fail the import.
	s.recordLastFilename(ctx, filename)

	slog.InfoContext(ctx, "Statement imported",
		"filename", filename,
		"inserted", inserted,
		"auto_categorized", autoCategorized,
		"pre_categorized", preCategorized)

	return ImportResult{
		Inserted:          inserted,
		AutoCategorized:   autoCategorized,
		HasCategoryColumn: preCategorized,
	}, nil
}

// ClearData removes every stored transaction.
func (s *Service) ClearData(ctx context.Context) error {
	return s.store.ClearTransactions(ctx)
}

// LastFilename returns the name of the most recently imported file, or ""
// when nothing was imported yet.
func (s *Service) LastFilename() string {
	data, err := os.ReadFile(filepath.Join(s.dataDir, lastFilenameFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *Service) recordLastFilename(ctx context.Context, filename string) {
	if filename == "" {
		return
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		slog.WarnContext(ctx, "Failed to create data directory for filename record", "error", err)
		return
	}
	path := filepath.Join(s.dataDir, lastFilenameFile)
	if err := os.WriteFile(path, []byte(filename), 0644); err != nil {
		slog.WarnContext(ctx, "Failed to record last uploaded filename", "error", err, "path", path)
	}
}
