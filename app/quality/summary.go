package quality

import (
	"github.com/huanchen1107/TawinCWA/app/table"
)

type ColumnSummary struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	NullCount int    `json:"null_count"`
	Distinct  int    `json:"distinct"`
}

type Summary struct {
	Rows             int             `json:"rows"`
	Columns          int             `json:"columns"`
	MissingPercent   float64         `json:"missing_percent"`
	DuplicatePercent float64         `json:"duplicate_percent"`
	ColumnDetails    []ColumnSummary `json:"column_details"`
}

// Summarize describes the shape of t. A column's type is the kind shared by
// all its non-null cells, "mixed" when they differ, or "null" when it has none.
func Summarize(t *table.Table) Summary {
	s := Summary{
		Rows:             t.Len(),
		Columns:          t.Width(),
		MissingPercent:   MissingPercent(t),
		DuplicatePercent: DuplicatePercent(t),
		ColumnDetails:    []ColumnSummary{},
	}
	if t == nil {
		return s
	}

	for _, c := range t.Columns() {
		cs := ColumnSummary{Name: c, Type: table.KindNull.String()}
		distinct := make(map[string]bool)
		var kind table.Kind
		for _, v := range t.Column(c) {
			if v.IsNull() {
				cs.NullCount++
				continue
			}
			distinct[v.String()] = true
			switch {
			case kind == table.KindNull:
				kind = v.Kind()
				cs.Type = kind.String()
			case kind != v.Kind():
				cs.Type = "mixed"
			}
		}
		cs.Distinct = len(distinct)
		s.ColumnDetails = append(s.ColumnDetails, cs)
	}
	return s
}
