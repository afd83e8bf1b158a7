package store

import (
	"fmt"
	"time"

	"github.com/libelia/libelia/internal/model"
)

// ExportEvaluations builds the export document for every stored evaluation,
// optionally restricted to one subject. Oldest evaluations come first.
func (s *Store) ExportEvaluations(subject string) (model.EvaluationExport, error) {
	list, err := s.ListEvaluations(subject, 0)
	if err != nil {
		return model.EvaluationExport{}, fmt.Errorf("list evaluations: %w", err)
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	if list == nil {
		list = []model.Evaluation{}
	}
	return model.EvaluationExport{
		ExportedAt:  time.Now().UTC(),
		Subject:     subject,
		Count:       len(list),
		Evaluations: list,
	}, nil
}
