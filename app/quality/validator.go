package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/huanchen1107/TawinCWA/app/normalize"
	"github.com/huanchen1107/TawinCWA/app/table"
)

const outlierThreshold = 3.0

// ValidationError describes a violated quality rule. It is reported alongside
// data and never aborts a read.
type ValidationError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

type Rules struct {
	MinRows           int
	MinColumns        int
	MaxMissingPercent float64
	RequiredColumns   []string
}

func DefaultRules() Rules {
	return Rules{
		MinRows:           1,
		MinColumns:        1,
		MaxMissingPercent: 90,
	}
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Score rates a table from 0 to 100 by its missing cells, duplicate rows and
// constant columns. An empty table scores 0.
func (v *Validator) Score(t *table.Table) float64 {
	if t.IsEmpty() {
		return 0
	}

	score := 100 -
		0.5*MissingPercent(t) -
		0.3*DuplicatePercent(t) -
		0.2*ConstantColumnPercent(t)

	return math.Max(0, math.Min(100, score))
}

// Validate checks t against rules and returns every violation.
func (v *Validator) Validate(t *table.Table, rules Rules) (bool, []ValidationError) {
	var issues []ValidationError

	if t.IsEmpty() {
		issues = append(issues, ValidationError{Rule: "not_empty", Message: "Dataset is empty"})
	}

	if t.Len() < rules.MinRows {
		issues = append(issues, ValidationError{
			Rule:    "min_rows",
			Message: fmt.Sprintf("Too few rows: %d < %d", t.Len(), rules.MinRows),
		})
	}

	if t.Width() < rules.MinColumns {
		issues = append(issues, ValidationError{
			Rule:    "min_columns",
			Message: fmt.Sprintf("Too few columns: %d < %d", t.Width(), rules.MinColumns),
		})
	}

	if missing := MissingPercent(t); missing > rules.MaxMissingPercent {
		issues = append(issues, ValidationError{
			Rule:    "max_missing",
			Message: fmt.Sprintf("Too many missing values: %.1f%% > %.1f%%", missing, rules.MaxMissingPercent),
		})
	}

	var absent []string
	for _, c := range rules.RequiredColumns {
		if !t.HasColumn(c) {
			absent = append(absent, c)
		}
	}
	if len(absent) > 0 {
		issues = append(issues, ValidationError{
			Rule:    "required_columns",
			Message: fmt.Sprintf("Missing required columns: %v", absent),
		})
	}

	return len(issues) == 0, issues
}

// Consistency reports columns that mix date formats and numeric columns with
// values more than three standard deviations from the mean.
func (v *Validator) Consistency(t *table.Table) []ValidationError {
	var issues []ValidationError
	if t.IsEmpty() {
		return issues
	}

	for _, c := range t.Columns() {
		formats := make(map[string]bool)
		var numbers []float64
		for _, val := range t.Column(c) {
			switch val.Kind() {
			case table.KindString:
				if f, ok := normalize.DateFormat(val.String()); ok {
					formats[f] = true
				}
			case table.KindNumber:
				f, _ := val.Float()
				numbers = append(numbers, f)
			}
		}

		if len(formats) > 1 {
			names := make([]string, 0, len(formats))
			for f := range formats {
				names = append(names, f)
			}
			sort.Strings(names)
			issues = append(issues, ValidationError{
				Rule:    "date_format",
				Message: fmt.Sprintf("Column '%s' has inconsistent date formats: %v", c, names),
			})
		}

		if n := countOutliers(numbers); n > 0 {
			issues = append(issues, ValidationError{
				Rule:    "outliers",
				Message: fmt.Sprintf("Column '%s' has %d potential outliers", c, n),
			})
		}
	}

	return issues
}

func MissingPercent(t *table.Table) float64 {
	cells := t.Len() * t.Width()
	if cells == 0 {
		return 0
	}
	missing := 0
	for _, r := range t.Rows() {
		for _, c := range t.Columns() {
			if r.Get(c).IsNull() {
				missing++
			}
		}
	}
	return float64(missing) / float64(cells) * 100
}

func DuplicatePercent(t *table.Table) float64 {
	if t.Len() == 0 {
		return 0
	}
	seen := make(map[string]bool, t.Len())
	duplicates := 0
	for _, r := range t.Rows() {
		key := t.RowKey(r)
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true
	}
	return float64(duplicates) / float64(t.Len()) * 100
}

// ConstantColumnPercent counts columns with at most one distinct non-null value.
func ConstantColumnPercent(t *table.Table) float64 {
	if t.Width() == 0 {
		return 0
	}
	constant := 0
	for _, c := range t.Columns() {
		distinct := make(map[string]bool)
		for _, val := range t.Column(c) {
			if val.IsNull() {
				continue
			}
			distinct[val.Kind().String()+":"+val.String()] = true
			if len(distinct) > 1 {
				break
			}
		}
		if len(distinct) <= 1 {
			constant++
		}
	}
	return float64(constant) / float64(t.Width()) * 100
}

func countOutliers(values []float64) int {
	if len(values) < 3 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(values)-1))
	if std == 0 {
		return 0
	}

	n := 0
	for _, v := range values {
		if math.Abs(v-mean)/std > outlierThreshold {
			n++
		}
	}
	return n
}
