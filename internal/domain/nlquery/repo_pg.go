package nlquery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/nlquery/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type vocabularyRepoPG struct{ db queryable }

// NewVocabularyRepoPG returns a repository over a pgx pool, connection or transaction.
func NewVocabularyRepoPG(db queryable) VocabularyRepository {
	return &vocabularyRepoPG{db: db}
}

func (r *vocabularyRepoPG) List(ctx context.Context) ([]ConditionEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, display, synonyms,
		        COALESCE(primary_system,''), COALESCE(primary_code,''), COALESCE(primary_display,''),
		        COALESCE(secondary_system,''), COALESCE(secondary_code,''), COALESCE(secondary_display,'')
		 FROM condition_vocabulary
		 WHERE active
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list condition vocabulary: %w", err)
	}
	defer rows.Close()

	var results []ConditionEntry
	for rows.Next() {
		var e ConditionEntry
		var primary, secondary fhir.Coding
		if err := rows.Scan(&e.Name, &e.Display, &e.Synonyms,
			&primary.System, &primary.Code, &primary.Display,
			&secondary.System, &secondary.Code, &secondary.Display); err != nil {
			return nil, fmt.Errorf("scan condition vocabulary: %w", err)
		}
		e.Primary, e.Secondary = primary, secondary
		results = append(results, e)
	}
	return results, rows.Err()
}

func (r *vocabularyRepoPG) Upsert(ctx context.Context, e ConditionEntry) error {
	synonyms := e.Synonyms
	if synonyms == nil {
		synonyms = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO condition_vocabulary
		    (name, display, synonyms, primary_system, primary_code, primary_display,
		     secondary_system, secondary_code, secondary_display, active, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), TRUE, NOW())
		 ON CONFLICT (name) DO UPDATE SET
		    display = EXCLUDED.display,
		    synonyms = EXCLUDED.synonyms,
		    primary_system = EXCLUDED.primary_system,
		    primary_code = EXCLUDED.primary_code,
		    primary_display = EXCLUDED.primary_display,
		    secondary_system = EXCLUDED.secondary_system,
		    secondary_code = EXCLUDED.secondary_code,
		    secondary_display = EXCLUDED.secondary_display,
		    active = TRUE,
		    updated_at = NOW()`,
		e.Name, e.Display, synonyms,
		e.Primary.System, e.Primary.Code, e.Primary.Display,
		e.Secondary.System, e.Secondary.Code, e.Secondary.Display)
	if err != nil {
		return fmt.Errorf("upsert condition %q: %w", e.Name, err)
	}
	return nil
}
