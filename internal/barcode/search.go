package barcode

import (
	"context"
	"fmt"

	"github.com/mhma/stockbarcode/internal/session"
)

// SearchReader runs search_read on the backend. *rpc.Client implements it.
type SearchReader interface {
	SearchRead(ctx context.Context, model string, domain []any, fields []string, limit int, out any) error
}

// ProductSearcher finds products whose display name contains a term.
type ProductSearcher struct {
	reader SearchReader
}

// NewProductSearcher creates a searcher backed by reader.
func NewProductSearcher(reader SearchReader) *ProductSearcher {
	return &ProductSearcher{reader: reader}
}

// SearchProducts returns at most limit product ids matching term.
func (s *ProductSearcher) SearchProducts(ctx context.Context, term string, limit int) ([]session.ProductID, error) {
	var rows []struct {
		ID int64 `json:"id"`
	}
	domain := []any{[]any{"display_name", "ilike", term}}
	if err := s.reader.SearchRead(ctx, ModelProduct, domain, []string{"id"}, limit, &rows); err != nil {
		return nil, fmt.Errorf("search products %q: %w", term, err)
	}
	ids := make([]session.ProductID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, session.ProductID(r.ID))
	}
	return ids, nil
}
