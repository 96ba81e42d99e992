package nlquery

import "context"

// VocabularyRepository persists condition entries.
type VocabularyRepository interface {
	List(ctx context.Context) ([]ConditionEntry, error)
	Upsert(ctx context.Context, entry ConditionEntry) error
}
