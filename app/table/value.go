package table

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	default:
		return "null"
	}
}

// Value is a single scalar cell: null, string, number or timestamp.
type Value struct {
	kind Kind
	str  string
	num  float64
	t    time.Time
}

func Null() Value {
	return Value{}
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: f}
}

func Time(t time.Time) Value {
	return Value{kind: KindTime, t: t}
}

// Of converts a value decoded from JSON into a scalar cell. Composite values
// are kept as their JSON text.
func Of(x interface{}) Value {
	switch v := x.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case string:
		return String(v)
	case time.Time:
		return Time(v)
	case *time.Time:
		if v == nil {
			return Null()
		}
		return Time(*v)
	case bool:
		return String(cast.ToString(v))
	case json.Number, float64, float32, int, int32, int64, uint, uint32, uint64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return String(cast.ToString(v))
		}
		return Number(f)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return String(cast.ToString(v))
		}
		return String(string(data))
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// String renders the value canonically. Integral numbers have no fraction,
// midnight UTC timestamps render as plain dates.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTime:
		if isDateOnly(v.t) {
			return v.t.Format(time.DateOnly)
		}
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString, KindTime:
		return json.Marshal(v.String())
	default:
		return []byte("null"), nil
	}
}

// key identifies the value for duplicate detection.
func (v Value) key() string {
	return strconv.Itoa(int(v.kind)) + ":" + v.String()
}

func isDateOnly(t time.Time) bool {
	return t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
