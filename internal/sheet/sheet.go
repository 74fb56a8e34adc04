// Package sheet reads the spreadsheet export that feeds the flow pipeline.
package sheet

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"options-flow-scanner/internal/flow"
)

// Block is one exported range: a header row followed by data rows.
type Block struct {
	Side    flow.Side
	Headers []string
	Rows    [][]string
}

// Labels returns the headers made unique. A repeated label gets a " #n"
// suffix so every column stays addressable; blank headers become "col n".
func (b Block) Labels() []string {
	labels := make([]string, len(b.Headers))
	seen := make(map[string]int, len(b.Headers))
	for i, h := range b.Headers {
		label := strings.TrimSpace(h)
		if label == "" {
			label = fmt.Sprintf("col %d", i+1)
		}
		seen[label]++
		if n := seen[label]; n > 1 {
			label = fmt.Sprintf("%s #%d", label, n)
		}
		labels[i] = label
	}
	return labels
}

// RawRows keys every row by label. Short rows are padded with empty cells and
// cells beyond the header row are ignored. Fully blank rows are skipped.
func (b Block) RawRows() []flow.RawRow {
	labels := b.Labels()
	rows := make([]flow.RawRow, 0, len(b.Rows))
	for _, cells := range b.Rows {
		if blank(cells) {
			continue
		}
		row := make(flow.RawRow, len(labels))
		for i, label := range labels {
			if i < len(cells) {
				row[label] = cells[i]
			} else {
				row[label] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Batch detects the manifest and converts the rows in one step.
func (b Block) Batch() flow.Batch {
	return flow.Batch{
		Manifest: DetectManifest(b.Side, b.Labels()),
		Rows:     b.RawRows(),
	}
}

// Batches converts every block.
func Batches(blocks []Block) []flow.Batch {
	out := make([]flow.Batch, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Batch())
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type export struct {
	Buying  [][]any `json:"buying"`
	Selling [][]any `json:"selling"`
}

// LoadFile reads the {"buying": [...], "selling": [...]} export. The first
// row of each range is its header row. Missing or empty ranges are skipped.
func LoadFile(fs afero.Fs, path string) ([]Block, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read sheet export: %w", err)
	}
	return Parse(data)
}

// Parse decodes an export document.
func Parse(data []byte) ([]Block, error) {
	var doc export
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode sheet export: %w", err)
	}

	blocks := make([]Block, 0, 2)
	for _, r := range []struct {
		side flow.Side
		rows [][]any
	}{
		{flow.SideBuy, doc.Buying},
		{flow.SideSell, doc.Selling},
	} {
		if len(r.rows) == 0 {
			continue
		}
		block := Block{Side: r.side, Headers: cellStrings(r.rows[0])}
		for _, row := range r.rows[1:] {
			block.Rows = append(block.Rows, cellStrings(row))
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func cellStrings(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
