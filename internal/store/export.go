package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/essayeval/internal/model"
)

// Export builds an export document from the results matching f.
func Export(ctx context.Context, repo Repository, f model.HistoryFilter) (model.HistoryExport, error) {
	results, err := repo.Results(ctx, f)
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list results: %w", err)
	}
	return model.HistoryExport{
		ExportedAt: time.Now().UTC(),
		ExamType:   f.ExamType,
		Subject:    f.Subject,
		Count:      len(results),
		Results:    results,
	}, nil
}
