package sheet

import (
	"regexp"
	"strings"

	"options-flow-scanner/internal/flow"
)

var spaces = regexp.MustCompile(`\s+`)

type fieldPatterns struct {
	field    flow.Field
	patterns []string
}

// detection order matters: the order date patterns include the bare word
// "date", so every other date-like column is claimed before it.
var detection = []fieldPatterns{
	{flow.FieldTicker, []string{"ticker", "symbol", "stock"}},
	{flow.FieldExpMonth, []string{"xmonth", "x month"}},
	{flow.FieldExpDay, []string{"xdate", "x date"}},
	{flow.FieldExpYear, []string{"xyear", "x year"}},
	{flow.FieldExpiry, []string{"expiry", "expiration", "exp date"}},
	{flow.FieldDTE, []string{"dte"}},
	{flow.FieldStrike, []string{"strike"}},
	{flow.FieldType, []string{"option type", "c/p", "type"}},
	{flow.FieldCallQty, []string{"calls qty", "call qty", "call quantity"}},
	{flow.FieldPutQty, []string{"puts qty", "put qty", "put quantity"}},
	{flow.FieldCallDollar, []string{"calls $", "call $", "call$", "calls premiums"}},
	{flow.FieldPutDollar, []string{"puts $", "put $", "put$", "puts premiums"}},
	{flow.FieldTradePrice, []string{"trade price", "trd $", "trade $"}},
	{flow.FieldInsights, []string{"order insights", "insights"}},
	{flow.FieldOrderDate, []string{"today's date", "order date", "trade date", "date"}},
}

// NormalizeHeader collapses whitespace and lower-cases a header label.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(spaces.ReplaceAllString(h, " ")))
}

// DetectManifest maps logical fields to header labels. For each field the
// patterns are tried in order and the first unclaimed header containing the
// pattern wins. Labels must be unique, see Block.Labels.
func DetectManifest(side flow.Side, labels []string) flow.Manifest {
	normalized := make([]string, len(labels))
	for i, l := range labels {
		normalized[i] = NormalizeHeader(l)
	}

	claimed := make([]bool, len(labels))
	columns := make(map[flow.Field]string)
	for _, fp := range detection {
	patterns:
		for _, pat := range fp.patterns {
			for i, h := range normalized {
				if claimed[i] || h == "" || !strings.Contains(h, pat) {
					continue
				}
				claimed[i] = true
				columns[fp.field] = labels[i]
				break patterns
			}
		}
	}
	return flow.Manifest{Side: side, Columns: columns}
}
