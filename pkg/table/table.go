// Package table implements the tabular payloads that Vev attaches to graph
// vertices and edges.
//
// A Table is a small, ordered, in-memory frame: named columns in a fixed
// order and rows of scalar cells. It is deliberately not a query engine or a
// dataframe library; it exists to carry auxiliary data (measurements,
// metadata rows, import fragments) alongside a graph element and to survive
// round trips through JSON, CSV, and Arrow IPC.
//
// Cells hold nil, string, bool, int64, or float64. Integer and float inputs
// of other widths are normalized on the way in so that a Table compares equal
// after any codec round trip.
//
// Example:
//
//	tbl, _ := table.New("name", "score")
//	tbl.AppendRow("alice", int64(42))
//	tbl.AppendRow("bob", 17) // ints are normalized to int64
//	sub, _ := tbl.Select("name")
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Common errors
var (
	ErrNoColumns     = errors.New("table: no columns")
	ErrEmptyColumn   = errors.New("table: empty column name")
	ErrDupColumn     = errors.New("table: duplicate column name")
	ErrUnknownColumn = errors.New("table: unknown column")
	ErrRowArity      = errors.New("table: row length does not match columns")
	ErrBadValue      = errors.New("table: unsupported cell value")
)

// Table is an ordered set of named columns with rows of scalar cells.
// The zero value is not usable; construct with New, FromRows, or FromCSV.
type Table struct {
	cols     []string
	colIndex map[string]int
	rows     [][]any
}

// New creates an empty table with the given column names, in order.
func New(cols ...string) (*Table, error) {
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	t := &Table{
		cols:     make([]string, len(cols)),
		colIndex: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c == "" {
			return nil, ErrEmptyColumn
		}
		if _, dup := t.colIndex[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDupColumn, c)
		}
		t.cols[i] = c
		t.colIndex[c] = i
	}
	return t, nil
}

// FromRows creates a table with the given columns and rows.
func FromRows(cols []string, rows [][]any) (*Table, error) {
	t, err := New(cols...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := t.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromCSV reads a table from CSV data. The first record is the header row.
// All cells are kept as strings; callers that need typed cells should build
// the table with New/AppendRow instead.
func FromCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("table: read csv header: %w", err)
	}
	t, err := New(header...)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table: read csv row: %w", err)
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		if err := t.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AppendRow adds one row. The number of values must match the number of
// columns. Values are normalized: int widths become int64, float32 becomes
// float64; anything non-scalar is rejected.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.cols) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrRowArity, len(values), len(t.cols))
	}
	row := make([]any, len(values))
	for i, v := range values {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("%w (column %q)", err, t.cols[i])
		}
		row[i] = nv
	}
	t.rows = append(t.rows, row)
	return nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// Value returns the cell at the given row and named column.
func (t *Table) Value(row int, col string) (any, bool) {
	j, ok := t.colIndex[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil, false
	}
	return t.rows[row][j], true
}

// Row returns a copy of the row at index i.
func (t *Table) Row(i int) ([]any, bool) {
	if i < 0 || i >= len(t.rows) {
		return nil, false
	}
	out := make([]any, len(t.rows[i]))
	copy(out, t.rows[i])
	return out, true
}

// Column returns a copy of the named column's cells, top to bottom.
func (t *Table) Column(name string) ([]any, bool) {
	j, ok := t.colIndex[name]
	if !ok {
		return nil, false
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, true
}

// Clone returns a deep copy. Cells are scalars, so copying rows is enough.
func (t *Table) Clone() *Table {
	c := &Table{
		cols:     make([]string, len(t.cols)),
		colIndex: make(map[string]int, len(t.colIndex)),
		rows:     make([][]any, len(t.rows)),
	}
	copy(c.cols, t.cols)
	for k, v := range t.colIndex {
		c.colIndex[k] = v
	}
	for i, row := range t.rows {
		r := make([]any, len(row))
		copy(r, row)
		c.rows[i] = r
	}
	return c
}

// Select returns a new table containing only the named columns, in the
// requested order.
func (t *Table) Select(cols ...string) (*Table, error) {
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.colIndex[c]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
		idx[i] = j
	}
	for _, row := range t.rows {
		sel := make([]any, len(idx))
		for i, j := range idx {
			sel[i] = row[j]
		}
		out.rows = append(out.rows, sel)
	}
	return out, nil
}

// DropColumns returns a new table without the named columns. Names that are
// not present are ignored. Dropping every column is an error.
func (t *Table) DropColumns(cols ...string) (*Table, error) {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	var keep []string
	for _, c := range t.cols {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		return nil, ErrNoColumns
	}
	return t.Select(keep...)
}

// WithLeadingColumns returns a new table with extra columns prefixed ahead of
// the existing ones. Each new column holds the same value in every row. The
// original columns keep their order and cell values. Prefixing fails if a new
// name collides with an existing column.
func (t *Table) WithLeadingColumns(cols []string, values []any) (*Table, error) {
	if len(cols) != len(values) {
		return nil, fmt.Errorf("%w: %d names for %d values", ErrRowArity, len(cols), len(values))
	}
	for _, c := range cols {
		if t.HasColumn(c) {
			return nil, fmt.Errorf("%w: %q", ErrDupColumn, c)
		}
	}
	merged := append(append([]string{}, cols...), t.cols...)
	out, err := New(merged...)
	if err != nil {
		return nil, err
	}
	lead := make([]any, len(values))
	for i, v := range values {
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%w (column %q)", err, cols[i])
		}
		lead[i] = nv
	}
	for _, row := range t.rows {
		nr := make([]any, 0, len(lead)+len(row))
		nr = append(nr, lead...)
		nr = append(nr, row...)
		out.rows = append(out.rows, nr)
	}
	return out, nil
}

// Filter returns a new table with the rows for which pred returns true. The
// row slice passed to pred is a copy; mutating it has no effect.
func (t *Table) Filter(pred func(row []any) bool) *Table {
	out := t.Clone()
	out.rows = out.rows[:0]
	for _, row := range t.rows {
		r := make([]any, len(row))
		copy(r, row)
		if pred(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Equal reports whether two tables have identical columns, row order, and
// cell values.
func (t *Table) Equal(other *Table) bool {
	if other == nil || len(t.cols) != len(other.cols) || len(t.rows) != len(other.rows) {
		return false
	}
	for i := range t.cols {
		if t.cols[i] != other.cols[i] {
			return false
		}
	}
	for i := range t.rows {
		for j := range t.rows[i] {
			if t.rows[i][j] != other.rows[i][j] {
				return false
			}
		}
	}
	return true
}

// String returns a compact description, e.g. "table[3x2: name, score]".
func (t *Table) String() string {
	return fmt.Sprintf("table[%dx%d: %s]", len(t.rows), len(t.cols), strings.Join(t.cols, ", "))
}

// normalize coerces a cell value into the canonical scalar set.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadValue, v)
	}
}
