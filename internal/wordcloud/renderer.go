// Package wordcloud renders a collection of texts into an image of the most
// frequent terms. The built-in renderer emits SVG so no raster tooling is
// needed server-side.
package wordcloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Renderer turns a collection of texts into image bytes.
type Renderer interface {
	Render(ctx context.Context, texts []string) ([]byte, error)
	// ContentType reports the MIME type of the rendered bytes.
	ContentType() string
}

// ErrNoText is returned when the input contains no renderable words.
var ErrNoText = errors.New("no text available for word cloud")

const (
	canvasWidth  = 1200
	canvasHeight = 800
	maxWords     = 60
	minFontSize  = 14
	maxFontSize  = 88
)

// SVGRenderer lays the top terms out in frequency order on rows, scaling
// font size by relative frequency. Output is deterministic for a given
// input, which keeps snapshots cacheable.
type SVGRenderer struct{}

// NewSVGRenderer constructs the built-in renderer.
func NewSVGRenderer() *SVGRenderer { return &SVGRenderer{} }

// ContentType reports the SVG MIME type.
func (r *SVGRenderer) ContentType() string { return "image/svg+xml" }

type wordCount struct {
	word  string
	count int
}

// Render produces the SVG document for the given texts.
func (r *SVGRenderer) Render(ctx context.Context, texts []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := countWords(texts)
	if len(counts) == 0 {
		return nil, ErrNoText
	}
	if len(counts) > maxWords {
		counts = counts[:maxWords]
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		canvasWidth, canvasHeight, canvasWidth, canvasHeight)
	b.WriteString(`<rect width="100%" height="100%" fill="white"/>`)

	maxCount := counts[0].count
	minCount := counts[len(counts)-1].count

	x, y := 20, 20
	rowHeight := 0
	for i, wc := range counts {
		size := fontSize(wc.count, minCount, maxCount)
		// Rough glyph-width estimate keeps the layout dependency-free.
		width := int(float64(len(wc.word))*float64(size)*0.62) + 16
		if x+width > canvasWidth-20 {
			x = 20
			y += rowHeight + 10
			rowHeight = 0
		}
		if y+size > canvasHeight-20 {
			break
		}
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Helvetica,Arial,sans-serif" font-size="%d" fill="%s">%s</text>`,
			x, y+size, size, palette[i%len(palette)], escapeXML(wc.word))
		x += width
		if size > rowHeight {
			rowHeight = size
		}
	}

	b.WriteString(`</svg>`)
	return []byte(b.String()), nil
}

var palette = []string{"#0f172a", "#2563eb", "#059669", "#d97706", "#dc2626", "#7c3aed"}

func fontSize(count, minCount, maxCount int) int {
	if maxCount == minCount {
		return (minFontSize + maxFontSize) / 2
	}
	ratio := float64(count-minCount) / float64(maxCount-minCount)
	return minFontSize + int(ratio*float64(maxFontSize-minFontSize))
}

// countWords tallies lowercase word frequencies across all texts, dropping
// stopwords and one-letter tokens, ordered by count descending then
// alphabetically for determinism.
func countWords(texts []string) []wordCount {
	freq := make(map[string]int)
	for _, text := range texts {
		for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
		}) {
			tok = strings.Trim(tok, "'")
			if len(tok) < 2 || stopwords[tok] {
				continue
			}
			freq[tok]++
		}
	}

	counts := make([]wordCount, 0, len(freq))
	for w, c := range freq {
		counts = append(counts, wordCount{word: w, count: c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})
	return counts
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "he": true, "her": true,
	"his": true, "i": true, "if": true, "in": true, "is": true, "it": true,
	"its": true, "my": true, "of": true, "on": true, "or": true, "our": true,
	"she": true, "so": true, "that": true, "the": true, "their": true,
	"them": true, "they": true, "this": true, "to": true, "was": true,
	"we": true, "were": true, "what": true, "when": true, "which": true,
	"who": true, "will": true, "with": true, "would": true, "you": true,
	"your": true,
}
