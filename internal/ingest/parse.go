// Package ingest parses uploaded feedback files (CSV, JSON, TXT) into a
// flat, ordered list of text items for analysis.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Item is one parsed feedback text and the file it came from.
type Item struct {
	Text string
	File string
}

// ParseFile dispatches on the file extension: .csv needs a "text" column,
// .json must be an array of objects with a "text" field, anything else is
// treated as plain text with one item per non-empty line.
func ParseFile(fileName string, data []byte) ([]Item, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return parseCSV(fileName, data)
	case ".json":
		return parseJSON(fileName, data)
	default:
		return parseTXT(fileName, data)
	}
}

// ParseFiles parses every file in order and concatenates the items,
// preserving submission order across files.
func ParseFiles(names []string, contents [][]byte) ([]Item, error) {
	var items []Item
	for i, name := range names {
		parsed, err := ParseFile(name, contents[i])
		if err != nil {
			return nil, err
		}
		items = append(items, parsed...)
	}
	return items, nil
}

// CleanText collapses whitespace runs into single spaces and trims.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func parseCSV(fileName string, data []byte) ([]Item, error) {
	reader := csv.NewReader(strings.NewReader(stripBOM(string(data))))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header in %s: %w", fileName, err)
	}
	textCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "text") {
			textCol = i
			break
		}
	}
	if textCol == -1 {
		return nil, fmt.Errorf("CSV missing 'text' column in %s", fileName)
	}

	var items []Item
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV rows in %s: %w", fileName, err)
		}
		if textCol >= len(record) {
			continue
		}
		if text := CleanText(record[textCol]); text != "" {
			items = append(items, Item{Text: text, File: fileName})
		}
	}
	return items, nil
}

func parseJSON(fileName string, data []byte) ([]Item, error) {
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects in %s: %w", fileName, err)
	}
	var items []Item
	for _, obj := range arr {
		raw, ok := obj["text"].(string)
		if !ok {
			continue
		}
		if text := CleanText(raw); text != "" {
			items = append(items, Item{Text: text, File: fileName})
		}
	}
	return items, nil
}

func parseTXT(fileName string, data []byte) ([]Item, error) {
	var items []Item
	for _, line := range strings.Split(stripBOM(string(data)), "\n") {
		if text := CleanText(line); text != "" {
			items = append(items, Item{Text: text, File: fileName})
		}
	}
	return items, nil
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
