package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/huanchen1107/TawinCWA/app/table"
)

type Normalizer struct {
	location *time.Location
}

// NewNormalizer returns a normalizer that interprets zone-less timestamps in loc.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{location: loc}
}

// Run cleans a table: blank cells become null, empty rows and columns are
// dropped, column names are canonicalised, duplicate rows are removed, and
// date-like and numeric string columns are converted. Running it on its own
// output returns an identical table.
func (n *Normalizer) Run(t *table.Table) *table.Table {
	if t == nil {
		return table.New()
	}

	columns := t.Columns()
	rows := make([]table.Record, 0, t.Len())
	for _, r := range t.Rows() {
		row := make(table.Record, len(columns))
		for _, c := range columns {
			v := r.Get(c)
			if v.Kind() == table.KindString && strings.TrimSpace(v.String()) == "" {
				v = table.Null()
			}
			row[c] = v
		}
		rows = append(rows, row)
	}

	rows = dropEmptyRows(rows, columns)
	columns = nonEmptyColumns(rows, columns)

	names := canonicalNames(columns)
	out := table.New(names...)
	for _, r := range rows {
		row := make(table.Record, len(columns))
		for i, c := range columns {
			row[names[i]] = r[c]
		}
		out.Append(row)
	}

	// Conversion can make distinct rows equal and dropping rows can tip a
	// column over the date threshold, so repeat until nothing changes.
	for {
		for _, c := range out.Columns() {
			n.convertDates(out, c)
			convertNumbers(out, c)
		}
		deduped := dropDuplicates(out)
		if deduped.Len() == out.Len() {
			break
		}
		out = deduped
	}

	return out
}

func dropDuplicates(t *table.Table) *table.Table {
	out := table.New(t.Columns()...)
	seen := make(map[string]bool, t.Len())
	for _, r := range t.Rows() {
		key := t.RowKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Append(r)
	}
	return out
}

func dropEmptyRows(rows []table.Record, columns []string) []table.Record {
	kept := rows[:0]
	for _, r := range rows {
		for _, c := range columns {
			if !r[c].IsNull() {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

func nonEmptyColumns(rows []table.Record, columns []string) []string {
	var kept []string
	for _, c := range columns {
		for _, r := range rows {
			if !r[c].IsNull() {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept
}

func canonicalNames(columns []string) []string {
	names := make([]string, len(columns))
	used := make(map[string]bool, len(columns))
	for i, c := range columns {
		name := CanonicalName(c)
		if used[name] {
			for suffix := 2; ; suffix++ {
				candidate := name + "_" + strconv.Itoa(suffix)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// convertDates replaces string cells with timestamps when more than half of
// the column's non-null strings parse as dates.
func (n *Normalizer) convertDates(t *table.Table, column string) {
	total := 0
	parsed := make(map[int]time.Time)
	for i, r := range t.Rows() {
		v := r.Get(column)
		if v.Kind() != table.KindString {
			continue
		}
		total++
		if ts, ok := ParseDate(v.String(), n.location); ok {
			parsed[i] = ts
		}
	}

	if total == 0 || len(parsed)*2 <= total {
		return
	}

	rows := t.Rows()
	for i, ts := range parsed {
		rows[i][column] = table.Time(ts)
	}
}

// convertNumbers replaces string cells with numbers only when every
// non-null cell converts without loss.
func convertNumbers(t *table.Table, column string) {
	values := make(map[int]float64)
	for i, r := range t.Rows() {
		v := r.Get(column)
		switch v.Kind() {
		case table.KindNull, table.KindNumber:
			continue
		case table.KindString:
			f, ok := ParseNumber(v.String())
			if !ok {
				return
			}
			values[i] = f
		default:
			return
		}
	}

	rows := t.Rows()
	for i, f := range values {
		rows[i][column] = table.Number(f)
	}
}
