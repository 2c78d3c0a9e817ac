// Package usecase implements the watch list operations.
package usecase

import (
	"context"
	"errors"
	"strings"

	"stock_history/internal/feature/symbollist/domain/entity"
)

// ErrEmptyCode is returned when a watch list entry has no ticker code.
var ErrEmptyCode = errors.New("symbol code is empty")

// SymbolRepository abstracts the persistence layer for the watch list.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
	// Seed inserts symbols whose code is not stored yet. Existing rows are left untouched.
	Seed(ctx context.Context, symbols []entity.Symbol) (int, error)
}

// SymbolUsecase provides the watch list operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns all active symbols from the repository.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	return u.repo.ListActive(ctx)
}

// ActiveCodes returns the codes to preload, in watch list order.
func (u *SymbolUsecase) ActiveCodes(ctx context.Context) ([]string, error) {
	return u.repo.ListActiveCodes(ctx)
}

// SeedWatchlist registers codes from configuration. Codes are upper-cased and
// de-duplicated, and SortKey follows their order in codes.
func (u *SymbolUsecase) SeedWatchlist(ctx context.Context, codes []string) (int, error) {
	seen := make(map[string]struct{}, len(codes))
	symbols := make([]entity.Symbol, 0, len(codes))
	for _, c := range codes {
		code := strings.ToUpper(strings.TrimSpace(c))
		if code == "" {
			return 0, ErrEmptyCode
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		symbols = append(symbols, entity.Symbol{Code: code, Name: code, Market: "US", IsActive: true, SortKey: len(symbols) + 1})
	}
	if len(symbols) == 0 {
		return 0, nil
	}
	return u.repo.Seed(ctx, symbols)
}
