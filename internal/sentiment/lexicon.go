package sentiment

import (
	"context"
	"math"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// neutralBand is the polarity magnitude below which the 3-class variant
// reports neutral instead of a weak positive/negative.
const neutralBand = 0.25

// LexiconClassifier scores texts with an Aho-Corasick automaton built over
// polarity word lists, so a batch of n texts costs O(total chars) regardless
// of lexicon size. The binary variant never emits neutral.
type LexiconClassifier struct {
	binary   bool
	matcher  *ahocorasick.Matcher
	polarity []int // +1 positive, -1 negative, indexed by dictionary position
}

// NewLexiconClassifier builds the automaton from the built-in lexicon.
func NewLexiconClassifier(binary bool) *LexiconClassifier {
	dict := make([][]byte, 0, len(positiveTerms)+len(negativeTerms))
	polarity := make([]int, 0, cap(dict))
	for _, term := range positiveTerms {
		dict = append(dict, padTerm(term))
		polarity = append(polarity, +1)
	}
	for _, term := range negativeTerms {
		dict = append(dict, padTerm(term))
		polarity = append(polarity, -1)
	}
	return &LexiconClassifier{
		binary:   binary,
		matcher:  ahocorasick.NewMatcher(dict),
		polarity: polarity,
	}
}

// Labels returns the label set for this variant.
func (c *LexiconClassifier) Labels() []string {
	if c.binary {
		return []string{LabelPositive, LabelNegative}
	}
	return []string{LabelPositive, LabelNeutral, LabelNegative}
}

// Classify labels every text in order. It only fails on context cancellation.
func (c *LexiconClassifier) Classify(ctx context.Context, texts []string) ([]Prediction, error) {
	preds := make([]Prediction, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		preds[i] = c.classifyOne(text)
	}
	return preds, nil
}

func (c *LexiconClassifier) classifyOne(text string) Prediction {
	pos, neg := 0, 0
	for _, hit := range c.matcher.Match([]byte(normalizeText(text))) {
		if c.polarity[hit] > 0 {
			pos++
		} else {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		if c.binary {
			return Prediction{Label: LabelPositive, Score: 0.5}
		}
		return Prediction{Label: LabelNeutral, Score: 0.5}
	}

	polarity := float64(pos-neg) / float64(total)
	score := 0.5 + math.Abs(polarity)/2

	if c.binary {
		if neg > pos {
			return Prediction{Label: LabelNegative, Score: score}
		}
		return Prediction{Label: LabelPositive, Score: score}
	}
	if math.Abs(polarity) < neutralBand {
		return Prediction{Label: LabelNeutral, Score: 0.5}
	}
	if polarity < 0 {
		return Prediction{Label: LabelNegative, Score: score}
	}
	return Prediction{Label: LabelPositive, Score: score}
}

// padTerm surrounds a lexicon entry with spaces so the automaton only
// matches whole words inside the normalized text.
func padTerm(term string) []byte {
	return []byte(" " + term + " ")
}

// normalizeText lowercases, maps punctuation to spaces, and collapses runs
// so padded dictionary terms align on word boundaries.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\'' {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}
