package nlquery

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source supplies the entries a Vocabulary is built from.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]ConditionEntry, error)
}

// BuiltinSource serves the compiled-in condition table.
type BuiltinSource struct{}

func (BuiltinSource) Name() string { return "builtin" }

func (BuiltinSource) Load(context.Context) ([]ConditionEntry, error) {
	return BuiltinEntries(), nil
}

// vocabularyDocument is the YAML layout of a vocabulary file:
//
//	conditions:
//	  - name: diabetes
//	    display: Diabetes mellitus
//	    synonyms: [diabetic]
//	    primary: {system: http://hl7.org/fhir/sid/icd-10-cm, code: E11}
//	    secondary: {system: http://snomed.info/sct, code: "73211009"}
type vocabularyDocument struct {
	Conditions []ConditionEntry `yaml:"conditions"`
}

// FileSource reads a YAML vocabulary file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(context.Context) ([]ConditionEntry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	return ParseVocabularyYAML(data)
}

// ParseVocabularyYAML decodes a vocabulary document.
func ParseVocabularyYAML(data []byte) ([]ConditionEntry, error) {
	var doc vocabularyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse vocabulary yaml: %w", err)
	}
	if len(doc.Conditions) == 0 {
		return nil, fmt.Errorf("vocabulary file has no conditions")
	}
	return doc.Conditions, nil
}

// MarshalVocabularyYAML encodes entries in the vocabulary file layout.
func MarshalVocabularyYAML(entries []ConditionEntry) ([]byte, error) {
	data, err := yaml.Marshal(vocabularyDocument{Conditions: entries})
	if err != nil {
		return nil, fmt.Errorf("marshal vocabulary yaml: %w", err)
	}
	return data, nil
}

// RepositorySource loads entries from a VocabularyRepository.
type RepositorySource struct {
	Repo VocabularyRepository
}

func (s RepositorySource) Name() string { return "postgres" }

func (s RepositorySource) Load(ctx context.Context) ([]ConditionEntry, error) {
	entries, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary from repository: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("vocabulary table is empty")
	}
	return entries, nil
}
