package wordcloud

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRenderProducesSVG(t *testing.T) {
	r := NewSVGRenderer()
	texts := []string{
		"battery battery battery life is short",
		"battery drains fast, screen is nice",
		"screen looks nice",
	}
	out, err := r.Render(context.Background(), texts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("<svg")) || !bytes.HasSuffix(out, []byte("</svg>")) {
		t.Fatalf("output is not an SVG document: %.60s...", out)
	}
	svg := string(out)
	if !strings.Contains(svg, ">battery<") {
		t.Errorf("expected dominant word battery in output")
	}
	if strings.Contains(svg, ">is<") {
		t.Errorf("stopword leaked into output")
	}
}

func TestRenderDeterministic(t *testing.T) {
	r := NewSVGRenderer()
	texts := []string{"fast shipping", "slow support", "fast checkout"}
	a, err := r.Render(context.Background(), texts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := r.Render(context.Background(), texts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("render output is not deterministic")
	}
}

func TestRenderNoText(t *testing.T) {
	r := NewSVGRenderer()
	_, err := r.Render(context.Background(), []string{"", "  ", "a"})
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestCountWordsOrdering(t *testing.T) {
	counts := countWords([]string{"beta alpha beta", "alpha beta"})
	if len(counts) != 2 {
		t.Fatalf("got %d words, want 2", len(counts))
	}
	if counts[0].word != "beta" || counts[0].count != 3 {
		t.Errorf("top word = %+v, want beta x3", counts[0])
	}
	if counts[1].word != "alpha" || counts[1].count != 2 {
		t.Errorf("second word = %+v, want alpha x2", counts[1])
	}
}

func TestRenderEscapesMarkup(t *testing.T) {
	r := NewSVGRenderer()
	out, err := r.Render(context.Background(), []string{"<script> <script> alert"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bytes.Contains(out, []byte("<script>")) {
		t.Error("markup not escaped in output")
	}
}
