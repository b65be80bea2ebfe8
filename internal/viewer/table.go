package viewer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FetchFailedMessage is shown in place of a response that could not be loaded.
const FetchFailedMessage = "Failed to fetch data"

const valueColumn = "value"

// Table is a backend response laid out for display.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Empty reports whether there is nothing to show.
func (t Table) Empty() bool {
	return len(t.Columns) == 0 || len(t.Rows) == 0
}

// ErrorTable is the single-cell table shown when a fetch fails.
func ErrorTable(message string) Table {
	return Table{Columns: []string{"error"}, Rows: [][]string{{message}}}
}

type object = orderedmap.OrderedMap[string, json.RawMessage]

// BuildTable lays out a JSON document. An array of objects gives one row
// per element with the columns of the first element, in document order. A
// single object gives one row.
func BuildTable(payload []byte) (Table, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Table{}, nil
	}

	switch payload[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err != nil {
			return Table{}, fmt.Errorf("decode response array: %w", err)
		}
		return tableFromArray(items)
	case '{':
		row, err := decodeObject(payload)
		if err != nil {
			return Table{}, err
		}
		if row.Len() == 0 {
			return Table{}, nil
		}
		columns := keys(row)
		return Table{Columns: columns, Rows: [][]string{rowCells(row, columns)}}, nil
	default:
		if !json.Valid(payload) {
			return Table{}, fmt.Errorf("decode response: invalid JSON")
		}
		return Table{Columns: []string{valueColumn}, Rows: [][]string{{cell(payload)}}}, nil
	}
}

func tableFromArray(items []json.RawMessage) (Table, error) {
	if len(items) == 0 {
		return Table{}, nil
	}

	first := bytes.TrimSpace(items[0])
	if len(first) == 0 || first[0] != '{' {
		table := Table{Columns: []string{valueColumn}}
		for _, item := range items {
			table.Rows = append(table.Rows, []string{cell(item)})
		}
		return table, nil
	}

	head, err := decodeObject(first)
	if err != nil {
		return Table{}, err
	}
	table := Table{Columns: keys(head)}
	for i, item := range items {
		row := head
		if i > 0 {
			if row, err = decodeObject(item); err != nil {
				// Non-object elements get an empty row, like a missing key would.
				row = orderedmap.New[string, json.RawMessage]()
			}
		}
		table.Rows = append(table.Rows, rowCells(row, table.Columns))
	}
	return table, nil
}

func decodeObject(payload []byte) (*object, error) {
	row := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(payload, row); err != nil {
		return nil, fmt.Errorf("decode response object: %w", err)
	}
	return row, nil
}

func keys(row *object) []string {
	columns := make([]string, 0, row.Len())
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, pair.Key)
	}
	return columns
}

func rowCells(row *object, columns []string) []string {
	cells := make([]string, len(columns))
	for i, column := range columns {
		if value, ok := row.Get(column); ok {
			cells[i] = cell(value)
		}
	}
	return cells
}

// cell renders one JSON value: strings unquoted, integral numbers without a
// fraction, null as empty, and nested values as compact JSON.
func cell(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case 'n':
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			return compact.String()
		}
	case 't', 'f':
		return string(raw)
	default:
		if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return string(raw)
}
