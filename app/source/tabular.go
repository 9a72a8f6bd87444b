package source

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/huanchen1107/TawinCWA/app/table"
)

// Generic resource payloads are accepted in four shapes: an array of
// objects, an array of arrays whose first row is the header, an object with a
// "data" array of objects, or a datastore object with "result.records".
type objectPayload struct {
	Data   *[]map[string]interface{} `json:"data"`
	Result *struct {
		Records *[]map[string]interface{} `json:"records"`
	} `json:"result"`
}

func decodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func tableFromJSON(data []byte) (*table.Table, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}

	if trimmed[0] == '[' {
		raw, err := decodeJSON(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return tableFromArray(raw.([]interface{}))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var payload objectPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch {
	case payload.Data != nil:
		return tableFromObjects(*payload.Data), nil
	case payload.Result != nil && payload.Result.Records != nil:
		return tableFromObjects(*payload.Result.Records), nil
	default:
		return nil, errors.New("object payload has neither 'data' nor 'result.records'")
	}
}

func tableFromArray(items []interface{}) (*table.Table, error) {
	if len(items) == 0 {
		return table.New(), nil
	}

	switch items[0].(type) {
	case map[string]interface{}:
		objects := make([]map[string]interface{}, 0, len(items))
		for i, item := range items {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d is not an object", i)
			}
			objects = append(objects, obj)
		}
		return tableFromObjects(objects), nil

	case []interface{}:
		rows := make([][]interface{}, 0, len(items))
		for i, item := range items {
			row, ok := item.([]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d is not an array", i)
			}
			rows = append(rows, row)
		}
		return tableFromRows(rows)

	default:
		return nil, errors.New("array elements must be objects or arrays")
	}
}

func tableFromObjects(objects []map[string]interface{}) *table.Table {
	t := table.New()
	for _, obj := range objects {
		record := make(table.Record, len(obj))
		for k, v := range obj {
			record[k] = table.Of(v)
		}
		t.Append(record)
	}
	return t
}

// tableFromRows treats the first row as the header.
func tableFromRows(rows [][]interface{}) (*table.Table, error) {
	if len(rows) == 0 {
		return table.New(), nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		s, ok := h.(string)
		if !ok {
			return nil, fmt.Errorf("header cell %d is not a string", i)
		}
		header[i] = s
	}

	t := table.New(header...)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+1, len(row), len(header))
		}
		record := make(table.Record, len(header))
		for j, v := range row {
			record[header[j]] = table.Of(v)
		}
		t.Append(record)
	}
	return t, nil
}

func tableFromCSV(data []byte) (*table.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return table.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimPrefix(h, "\ufeff")
		if header[i] == "" {
			header[i] = "column_" + strconv.Itoa(i+1)
		}
	}

	t := table.New(header...)
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		record := make(table.Record, len(header))
		for i, f := range fields {
			record[header[i]] = table.String(f)
		}
		t.Append(record)
	}
	return t, nil
}
