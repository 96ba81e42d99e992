package nlquery

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Compile outcomes reported to Metrics.
const (
	OutcomeCompiled    = "compiled"
	OutcomeEmpty       = "empty"
	OutcomeUnsupported = "unsupported"
)

// Explanation exposes the intermediate stages of a compilation.
type Explanation struct {
	Entities        RecognizedEntities `json:"entities"`
	Criteria        ParsedCriteria     `json:"criteria"`
	ConditionSearch *SearchPlan        `json:"condition_search,omitempty"`
	PatientSearch   *SearchPlan        `json:"patient_search,omitempty"`
}

// Service compiles clinical questions into FHIR search queries.
type Service struct {
	store   *VocabularyStore
	builder *QueryBuilder
	metrics Metrics
	logger  zerolog.Logger
}

// NewService creates a new compiler service.
func NewService(store *VocabularyStore, builder *QueryBuilder, metrics Metrics, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		store:   store,
		builder: builder,
		metrics: metrics,
		logger:  logger.With().Str("component", "nlquery").Logger(),
	}
}

// Compile runs recognition, parsing and query building against one
// vocabulary snapshot. It never returns an error; the unsupported-condition
// outcome is reported through CompiledQuery.
func (s *Service) Compile(ctx context.Context, text string) CompiledQuery {
	q, _ := s.compile(ctx, text)
	return q
}

// Explain is Compile plus the recognized entities, the parsed criteria and
// the generated searches taken apart into their parameters.
func (s *Service) Explain(ctx context.Context, text string) (CompiledQuery, Explanation) {
	q, ex := s.compile(ctx, text)
	ex.ConditionSearch, ex.PatientSearch = s.builder.Plan(ex.Criteria)
	return q, ex
}

func (s *Service) compile(ctx context.Context, text string) (CompiledQuery, Explanation) {
	start := time.Now()
	vocab := s.store.Current()

	entities := Recognize(vocab, text)
	criteria := Parse(vocab, entities)
	result := s.builder.Build(criteria)

	outcome := OutcomeCompiled
	switch {
	case result.ErrorCode == ErrorCodeUnsupportedCondition:
		outcome = OutcomeUnsupported
	case criteria.IsEmpty():
		outcome = OutcomeEmpty
	}
	elapsed := time.Since(start)
	s.metrics.ObserveCompile(outcome, elapsed)

	evt := s.logger.Debug().
		Str("outcome", outcome).
		Str("condition_status", string(criteria.Condition.Status)).
		Dur("duration", elapsed)
	if criteria.Condition.Entry != nil {
		evt = evt.Str("condition", criteria.Condition.Entry.Name)
	}
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		evt = evt.Str("request_id", rid)
	}
	evt.Msg("query compiled")

	return result, Explanation{Entities: entities, Criteria: criteria}
}

// Vocabulary returns the active vocabulary snapshot.
func (s *Service) Vocabulary() *Vocabulary {
	return s.store.Current()
}

// ReloadVocabulary rebuilds the vocabulary from its source.
func (s *Service) ReloadVocabulary(ctx context.Context) (*Vocabulary, error) {
	return s.store.Reload(ctx)
}

// VocabularySource names the source the vocabulary is loaded from.
func (s *Service) VocabularySource() string {
	return s.store.SourceName()
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is included in compile logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
