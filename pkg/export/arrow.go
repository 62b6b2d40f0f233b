package export

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/orneryd/vev/pkg/table"
)

// WriteTableIPC writes tbl as a single-record Arrow IPC stream.
//
// Each column gets the narrowest Arrow type that holds all of its cells:
// int64, float64, bool, or string. A column mixing integers and floats is
// widened to float64; any other mix falls back to string. Nil cells become
// Arrow nulls.
func WriteTableIPC(w io.Writer, tbl *table.Table) error {
	if tbl == nil {
		return fmt.Errorf("export: nil table")
	}

	pool := memory.NewGoAllocator()
	cols := tbl.Columns()

	fields := make([]arrow.Field, len(cols))
	for i, name := range cols {
		fields[i] = arrow.Field{Name: name, Type: columnType(tbl, name), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	arrays := make([]arrow.Array, len(cols))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()
	for i, name := range cols {
		a, err := buildColumn(pool, tbl, name, fields[i].Type)
		if err != nil {
			return err
		}
		arrays[i] = a
	}

	record := array.NewRecord(schema, arrays, int64(tbl.NumRows()))
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("export: write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("export: close arrow writer: %w", err)
	}
	return nil
}

// ReadTableIPC rebuilds a table from an Arrow IPC stream. Columns must be
// int64, float64, bool, or string; nulls become nil cells.
func ReadTableIPC(r io.Reader) (*table.Table, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("export: open arrow stream: %w", err)
	}
	defer reader.Release()

	schema := reader.Schema()
	cols := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		cols[i] = f.Name
	}
	tbl, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("export: arrow schema: %w", err)
	}

	for reader.Next() {
		record := reader.Record()
		for row := 0; row < int(record.NumRows()); row++ {
			cells := make([]any, record.NumCols())
			for col := 0; col < int(record.NumCols()); col++ {
				cell, err := cellAt(record.Column(col), row)
				if err != nil {
					return nil, fmt.Errorf("export: column %q: %w", cols[col], err)
				}
				cells[col] = cell
			}
			if err := tbl.AppendRow(cells...); err != nil {
				return nil, fmt.Errorf("export: arrow row: %w", err)
			}
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("export: read arrow stream: %w", err)
	}
	return tbl, nil
}

// WriteTableFile writes tbl as an Arrow IPC file at path.
func WriteTableFile(path string, tbl *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := WriteTableIPC(f, tbl); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}

// ReadTableFile rebuilds a table from an Arrow IPC file.
func ReadTableFile(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadTableIPC(f)
}

// columnType picks the Arrow type for one column by scanning its cells.
func columnType(tbl *table.Table, name string) arrow.DataType {
	cells, _ := tbl.Column(name)

	var sawInt, sawFloat, sawBool, sawString bool
	for _, c := range cells {
		switch c.(type) {
		case nil:
		case int64:
			sawInt = true
		case float64:
			sawFloat = true
		case bool:
			sawBool = true
		default:
			sawString = true
		}
	}

	switch {
	case sawString, sawBool && (sawInt || sawFloat):
		return arrow.BinaryTypes.String
	case sawBool:
		return arrow.FixedWidthTypes.Boolean
	case sawFloat:
		return arrow.PrimitiveTypes.Float64
	case sawInt:
		return arrow.PrimitiveTypes.Int64
	default:
		// All nulls.
		return arrow.BinaryTypes.String
	}
}

// buildColumn appends one column's cells into a fresh Arrow array.
func buildColumn(pool memory.Allocator, tbl *table.Table, name string, dt arrow.DataType) (arrow.Array, error) {
	cells, _ := tbl.Column(name)

	switch dt.ID() {
	case arrow.INT64:
		b := array.NewInt64Builder(pool)
		defer b.Release()
		for _, c := range cells {
			if c == nil {
				b.AppendNull()
				continue
			}
			b.Append(c.(int64))
		}
		return b.NewArray(), nil

	case arrow.FLOAT64:
		b := array.NewFloat64Builder(pool)
		defer b.Release()
		for _, c := range cells {
			switch x := c.(type) {
			case nil:
				b.AppendNull()
			case int64:
				b.Append(float64(x))
			case float64:
				b.Append(x)
			}
		}
		return b.NewArray(), nil

	case arrow.BOOL:
		b := array.NewBooleanBuilder(pool)
		defer b.Release()
		for _, c := range cells {
			if c == nil {
				b.AppendNull()
				continue
			}
			b.Append(c.(bool))
		}
		return b.NewArray(), nil

	case arrow.STRING:
		b := array.NewStringBuilder(pool)
		defer b.Release()
		for _, c := range cells {
			if c == nil {
				b.AppendNull()
				continue
			}
			b.Append(formatValue(c))
		}
		return b.NewArray(), nil

	default:
		return nil, fmt.Errorf("export: unsupported arrow type %s", dt)
	}
}

// cellAt converts one Arrow array element back into a table cell.
func cellAt(a arrow.Array, i int) (any, error) {
	if a.IsNull(i) {
		return nil, nil
	}
	switch arr := a.(type) {
	case *array.Int64:
		return arr.Value(i), nil
	case *array.Float64:
		return arr.Value(i), nil
	case *array.Boolean:
		return arr.Value(i), nil
	case *array.String:
		return arr.Value(i), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", a.DataType())
	}
}
