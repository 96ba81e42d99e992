package nlquery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics receives compiler and vocabulary observations.
type Metrics interface {
	ObserveCompile(outcome string, d time.Duration)
	SetVocabularySize(n int)
	ObserveReload(source string, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCompile(string, time.Duration) {}
func (nopMetrics) SetVocabularySize(int)                {}
func (nopMetrics) ObserveReload(string, error)          {}

// VocabularyStore holds the active Vocabulary. Readers take a snapshot with
// Current and never block; Reload builds a complete replacement before
// swapping it in, so a failed reload leaves the previous vocabulary active.
type VocabularyStore struct {
	current atomic.Pointer[Vocabulary]
	source  Source
	metrics Metrics
	logger  zerolog.Logger

	reloadMu sync.Mutex
}

// NewVocabularyStore creates an empty store. Call Reload before serving.
func NewVocabularyStore(source Source, metrics Metrics, logger zerolog.Logger) *VocabularyStore {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &VocabularyStore{
		source:  source,
		metrics: metrics,
		logger:  logger.With().Str("component", "vocabulary").Logger(),
	}
}

// NewStaticStore wraps an already built vocabulary.
func NewStaticStore(v *Vocabulary) *VocabularyStore {
	s := &VocabularyStore{metrics: nopMetrics{}, logger: zerolog.Nop()}
	s.current.Store(v)
	return s
}

// Current returns the active vocabulary snapshot, or nil before the first load.
func (s *VocabularyStore) Current() *Vocabulary {
	return s.current.Load()
}

// Swap installs v and returns the previous vocabulary.
func (s *VocabularyStore) Swap(v *Vocabulary) *Vocabulary {
	old := s.current.Swap(v)
	s.metrics.SetVocabularySize(v.Len())
	return old
}

// SourceName returns the name of the configured source.
func (s *VocabularyStore) SourceName() string {
	if s.source == nil {
		return "static"
	}
	return s.source.Name()
}

// Reload rebuilds the vocabulary from the source and swaps it in.
func (s *VocabularyStore) Reload(ctx context.Context) (*Vocabulary, error) {
	if s.source == nil {
		return nil, fmt.Errorf("vocabulary store has no source")
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	v, err := s.build(ctx)
	s.metrics.ObserveReload(s.source.Name(), err)
	if err != nil {
		s.logger.Error().Err(err).Str("source", s.source.Name()).Msg("vocabulary reload failed")
		return nil, err
	}

	s.Swap(v)
	s.logger.Info().
		Str("source", s.source.Name()).
		Int("entries", v.Len()).
		Msg("vocabulary loaded")
	return v, nil
}

func (s *VocabularyStore) build(ctx context.Context) (*Vocabulary, error) {
	entries, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	v, err := NewVocabulary(entries)
	if err != nil {
		return nil, fmt.Errorf("build vocabulary from %s: %w", s.source.Name(), err)
	}
	return v, nil
}
