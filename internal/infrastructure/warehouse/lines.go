package warehouse

import (
	"context"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
)

// LineRepository reads processed sales lines for one order.
type LineRepository struct {
	exec    Executor
	queries *queries.Builder
}

var _ reconciler.WarehouseFetcher = (*LineRepository)(nil)

// NewLineRepository creates a repository over exec.
func NewLineRepository(exec Executor, builder *queries.Builder) *LineRepository {
	return &LineRepository{exec: exec, queries: builder}
}

// FetchWarehouseLines returns every processed line of salesID, ordered by
// line creation sequence.
func (r *LineRepository) FetchWarehouseLines(ctx context.Context, salesID string) ([]normalize.Record, error) {
	q, err := r.queries.LineDetailBySalesID(salesID)
	if err != nil {
		return nil, err
	}
	return r.exec.Execute(ctx, q.SQL, q.Binds...)
}
