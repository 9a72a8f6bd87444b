package table

import (
	"encoding/json"
	"sort"
	"strings"
)

// Record maps a column name to its value for one row.
type Record map[string]Value

func (r Record) Get(column string) Value {
	return r[column]
}

// Table is an ordered set of columns and rows. Every row carries every
// column; cells that were never set are null.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Record
}

func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int)}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// FromRecords builds a table from loose records. Columns are added in sorted
// order of first appearance per record.
func FromRecords(records []Record) *Table {
	t := New()
	for _, r := range records {
		t.Append(r)
	}
	return t
}

func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	cols := make([]string, len(t.columns))
	copy(cols, t.columns)
	return cols
}

func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.index[name]
	return ok
}

func (t *Table) AddColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for _, r := range t.rows {
		r[name] = Null()
	}
}

// Append adds a copy of r. Unknown columns are added to the table.
func (t *Table) Append(r Record) {
	var unknown []string
	for k := range r {
		if _, ok := t.index[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		t.AddColumn(k)
	}

	row := make(Record, len(t.columns))
	for _, c := range t.columns {
		row[c] = r[c]
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Rows() []Record {
	if t == nil {
		return nil
	}
	return t.rows
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

func (t *Table) IsEmpty() bool {
	return t.Len() == 0 || t.Width() == 0
}

func (t *Table) Column(name string) []Value {
	if !t.HasColumn(name) {
		return nil
	}
	values := make([]Value, len(t.rows))
	for i, r := range t.rows {
		values[i] = r[name]
	}
	return values
}

// RowKey returns a string that is equal for two rows with identical cells.
func (t *Table) RowKey(r Record) string {
	var b strings.Builder
	for _, c := range t.columns {
		b.WriteString(r[c].key())
		b.WriteByte(0x1f)
	}
	return b.String()
}

func (t *Table) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	rows := t.rows
	if rows == nil {
		rows = []Record{}
	}
	return json.Marshal(rows)
}
