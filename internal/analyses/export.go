package analyses

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// utf8BOM makes the export open cleanly in spreadsheet tools that sniff
// encoding from the first bytes.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportCSV renders an analysis snapshot as a UTF-8 CSV with a BOM prefix.
func ExportCSV(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	header := []string{"index", "text", "sentiment", "sentiment_score", "summary", "summary_status"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, c := range snap.Comments {
		record := []string{
			strconv.Itoa(c.Index),
			c.OriginalText,
			c.SentimentLabel,
			strconv.FormatFloat(c.SentimentScore, 'f', 2, 64),
			c.Summary,
			c.SummaryStatus,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFileName names the download after the analysis.
func ExportFileName(analysis Analysis) string {
	return "analysis-" + analysis.ID + ".csv"
}
