package exporting

import (
	"fmt"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"
)

const ParquetBatchSize = 1000

func init() {
	Register(&ParquetFormat{})
}

// ParquetFormat handles Snappy-compressed Parquet output.
type ParquetFormat struct{}

func (f *ParquetFormat) Name() string      { return "parquet" }
func (f *ParquetFormat) Extension() string { return ".parquet" }
func (f *ParquetFormat) Writer() Writer    { return &ParquetWriter{} }

// ParquetWriter derives its schema from the first record and writes rows
// through the Row API in batches.
type ParquetWriter struct {
	path    string
	file    *os.File
	writer  *parquet.Writer
	columns []string
	buffer  []parquet.Row
	mu      sync.Mutex
}

func (w *ParquetWriter) Init(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w.path = path
	w.file = file
	w.buffer = make([]parquet.Row, 0, ParquetBatchSize)
	return nil
}

func (w *ParquetWriter) initSchema(record Record) {
	w.columns = sortedKeys(record)

	group := make(parquet.Group)
	for _, name := range w.columns {
		group[name] = nodeFor(record[name])
	}
	w.writer = parquet.NewWriter(w.file, parquet.NewSchema("sample", group),
		parquet.Compression(&parquet.Snappy),
	)
}

func nodeFor(val interface{}) parquet.Node {
	switch val.(type) {
	case int, int32, int64:
		return parquet.Optional(parquet.Int(64))
	case float32, float64:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case bool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	default:
		return parquet.Optional(parquet.String())
	}
}

func valueFor(val interface{}, column int) parquet.Value {
	switch v := val.(type) {
	case nil:
		return parquet.NullValue().Level(0, 0, column)
	case bool:
		return parquet.BooleanValue(v).Level(0, 1, column)
	case int:
		return parquet.Int64Value(int64(v)).Level(0, 1, column)
	case int32:
		return parquet.Int64Value(int64(v)).Level(0, 1, column)
	case int64:
		return parquet.Int64Value(v).Level(0, 1, column)
	case float32:
		return parquet.DoubleValue(float64(v)).Level(0, 1, column)
	case float64:
		return parquet.DoubleValue(v).Level(0, 1, column)
	case string:
		return parquet.ByteArrayValue([]byte(v)).Level(0, 1, column)
	default:
		return parquet.ByteArrayValue([]byte(fmt.Sprintf("%v", v))).Level(0, 1, column)
	}
}

func (w *ParquetWriter) Write(record Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		w.initSchema(record)
	}

	row := make(parquet.Row, len(w.columns))
	for i, name := range w.columns {
		row[i] = valueFor(record[name], i)
	}
	w.buffer = append(w.buffer, row)

	if len(w.buffer) >= ParquetBatchSize {
		return w.flushBuffer()
	}
	return nil
}

func (w *ParquetWriter) WriteBatch(records []Record) error {
	for i, r := range records {
		if err := w.Write(r); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return nil
}

func (w *ParquetWriter) flushBuffer() error {
	if len(w.buffer) == 0 || w.writer == nil {
		return nil
	}
	if _, err := w.writer.WriteRows(w.buffer); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushBuffer(); err != nil {
		return err
	}
	if w.writer != nil {
		return w.writer.Flush()
	}
	return nil
}

func (w *ParquetWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.writer != nil {
		if err := w.writer.Close(); err != nil {
			return err
		}
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *ParquetWriter) Path() string { return w.path }
