package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/survey-wizard/backend/internal/models"
)

// QuestionDocument is the externally sourced question configuration. JSON is
// the canonical format; YAML is accepted for hand-edited deployments.
type QuestionDocument struct {
	Questions []QuestionDef    `json:"questions" yaml:"questions"`
	Metadata  QuestionMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type QuestionDef struct {
	ID       int    `json:"id" yaml:"id"`
	Text     string `json:"text" yaml:"text"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty" yaml:"active,omitempty"`
}

type QuestionMetadata struct {
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	LastUpdated string `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Scale       string `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// LoadQuestions parses the document at path, dispatching on the file
// extension. Callers fall back to DefaultQuestions on error.
func LoadQuestions(path string) (*QuestionDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question config: %w", err)
	}
	var doc QuestionDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse question config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse question config: %w", err)
		}
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("question config %s contains no questions", path)
	}
	return &doc, nil
}

// ActiveQuestions filters out inactive entries and maps the rest to the
// store model.
func (d *QuestionDocument) ActiveQuestions() []*models.Question {
	out := make([]*models.Question, 0, len(d.Questions))
	for _, q := range d.Questions {
		if q.Active != nil && !*q.Active {
			continue
		}
		out = append(out, &models.Question{ID: q.ID, Text: q.Text})
	}
	return out
}

// DefaultQuestions is the built-in smartphone addiction scale, used when no
// config document is available.
func DefaultQuestions() *QuestionDocument {
	return &QuestionDocument{
		Questions: []QuestionDef{
			{ID: 1, Text: "Missing planned work due to smartphone use", Category: "productivity"},
			{ID: 2, Text: "Having a hard time concentrating in class, while doing assignments, or while working due to smartphone use", Category: "academic"},
			{ID: 3, Text: "Feeling pain in the wrists or at the back of the neck while using a smartphone", Category: "physical"},
			{ID: 4, Text: "Won't be able to stand not having a smartphone", Category: "dependency"},
			{ID: 5, Text: "Feeling impatient and fretful (ill-tempered) when I am not holding my smartphone", Category: "emotional"},
			{ID: 6, Text: "Having my smartphone in my mind even when I am not using it", Category: "psychological"},
			{ID: 7, Text: "I will never give up using my smartphone even when my daily life is already greatly affected by it", Category: "addiction"},
			{ID: 8, Text: "Constantly checking my smartphone so as not to miss conversations between other people on Twitter or Facebook", Category: "social"},
			{ID: 9, Text: "Using my smartphone longer than I had intended", Category: "time_management"},
			{ID: 10, Text: "The people around me tell me that I use my smartphone too much", Category: "social_feedback"},
		},
		Metadata: QuestionMetadata{
			Version:     "1.0",
			Description: "Default SAS questions",
			Scale:       "1-6 Likert scale",
		},
	}
}
