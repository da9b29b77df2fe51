package analyses

import (
	"bytes"
	"strings"
	"testing"
)

func TestExportCSVQuotesAndBOM(t *testing.T) {
	snap := Snapshot{
		Analysis: Analysis{ID: "a1", Name: "export test"},
		Comments: []Comment{
			{Index: 0, OriginalText: `has, comma and "quotes"`, SentimentLabel: "negative", SentimentScore: 0.75, Summary: "short.", SummaryStatus: SummaryOK},
			{Index: 1, OriginalText: "plain", SentimentLabel: "neutral", SentimentScore: 0.5, SummaryStatus: SummaryError},
		},
		Total: 2,
	}

	data, err := ExportCSV(snap)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if !bytes.HasPrefix(data, utf8BOM) {
		t.Fatal("missing BOM prefix")
	}

	lines := strings.Split(strings.TrimSpace(string(data[len(utf8BOM):])), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "index,text,sentiment,sentiment_score,summary,summary_status" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], `"has, comma and ""quotes"""`) {
		t.Fatalf("expected CSV quoting, got %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",error") {
		t.Fatalf("expected error status row, got %q", lines[2])
	}

	if name := ExportFileName(snap.Analysis); name != "analysis-a1.csv" {
		t.Fatalf("unexpected export name %q", name)
	}
}

func TestProgressRounding(t *testing.T) {
	cases := []struct {
		nonPending, total, want int
	}{
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{5, 10, 50},
		{10, 10, 100},
		{0, 0, 100},
	}
	for _, tc := range cases {
		if got := Progress(tc.nonPending, tc.total); got != tc.want {
			t.Fatalf("Progress(%d, %d) = %d, want %d", tc.nonPending, tc.total, got, tc.want)
		}
	}
}
