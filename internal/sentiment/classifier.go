// Package sentiment provides pluggable sentiment classification over raw
// feedback text. Classifiers run in a single pass over a whole batch: a
// failure for any item fails the stage, there is no per-item retry here.
package sentiment

import (
	"context"
	"fmt"
)

// Sentiment labels shared by all classifier variants.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Prediction is the label and confidence assigned to a single text.
type Prediction struct {
	Label string
	Score float64
}

// Classifier assigns a sentiment label and score to every text in one pass.
type Classifier interface {
	// Classify returns exactly one prediction per input text, in order.
	Classify(ctx context.Context, texts []string) ([]Prediction, error)
	// Labels returns the label set this variant can emit.
	Labels() []string
}

// Registry resolves classifier variants by their model tag.
type Registry struct {
	byTag map[string]Classifier
}

// NewRegistry builds a registry with the built-in lexicon variants
// registered under the "standard" (3-class) and "binary" (2-class) tags.
func NewRegistry() *Registry {
	return &Registry{byTag: map[string]Classifier{
		ModelStandard: NewLexiconClassifier(false),
		ModelBinary:   NewLexiconClassifier(true),
	}}
}

// Model tags accepted at analysis creation.
const (
	ModelStandard = "standard"
	ModelBinary   = "binary"
)

// DefaultModel is used when a request does not name a sentiment model.
const DefaultModel = ModelStandard

// Register adds or replaces a classifier under the given tag.
func (r *Registry) Register(tag string, c Classifier) {
	r.byTag[tag] = c
}

// Get resolves a classifier by tag.
func (r *Registry) Get(tag string) (Classifier, error) {
	c, ok := r.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("unknown sentiment model %q", tag)
	}
	return c, nil
}

// Tags returns the registered model tags.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	return tags
}
