package table

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type tableJSON struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// MarshalJSON encodes the table as {"columns": [...], "rows": [[...], ...]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	tj := tableJSON{Columns: t.cols, Rows: t.rows}
	if tj.Rows == nil {
		tj.Rows = [][]any{}
	}
	return json.Marshal(tj)
}

// UnmarshalJSON decodes a table written by MarshalJSON. Numeric cells decode
// as int64 when the literal is integral and float64 otherwise, so a float
// cell holding a whole number comes back as int64 after a round trip.
func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tj tableJSON
	if err := dec.Decode(&tj); err != nil {
		return fmt.Errorf("table: decode json: %w", err)
	}
	nt, err := New(tj.Columns...)
	if err != nil {
		return err
	}
	for _, row := range tj.Rows {
		for i, v := range row {
			if num, ok := v.(json.Number); ok {
				row[i] = coerceNumber(num)
			}
		}
		if err := nt.AppendRow(row...); err != nil {
			return err
		}
	}
	*t = *nt
	return nil
}

func coerceNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
