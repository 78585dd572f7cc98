// Package extract pulls source rows in bounded, key-ordered chunks.
// A stream restarted with the same start key reproduces the remaining
// rows, which is what makes checkpoint resume safe.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fm-sync/internal/dialect"
	"fm-sync/internal/schema"
)

// ReadError marks a source read failure mid-stream. Retryable: the
// coordinator restarts the batch from the last committed checkpoint.
type ReadError struct {
	Table string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("source read failed for table %s: %v", e.Table, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Batch is one bounded chunk of raw source rows, in key order.
type Batch struct {
	Table   *schema.Table
	Rows    [][]any
	LastKey []string // text form of the highest key tuple in the batch
}

// Stream produces successive Batches for one table. Not safe for
// concurrent use; each table worker owns exactly one stream.
type Stream struct {
	db      *sql.DB
	d       dialect.Source
	table   *schema.Table
	chunk   int
	maxRows int
	lastKey []any
	window  dialect.Window
	emitted int
	done    bool
}

const DefaultChunkSize = 1000

// New builds a stream. startKey, when non-nil, holds the text form of the
// key tuple to start at: exclusive for checkpoint resume, inclusive when
// the key was named explicitly. maxRows <= 0 means unbounded.
func New(db *sql.DB, d dialect.Source, table *schema.Table, chunk int, startKey []string, inclusive bool, maxRows int) (*Stream, error) {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	s := &Stream{db: db, d: d, table: table, chunk: chunk, maxRows: maxRows, window: dialect.WindowAll}
	if len(startKey) > 0 {
		if !table.HasKey() {
			return nil, fmt.Errorf("table %s has no key, cannot start from %v", table.Name, startKey)
		}
		binds, err := KeyBinds(table, startKey)
		if err != nil {
			return nil, err
		}
		s.lastKey = binds
		s.window = dialect.WindowAfter
		if inclusive {
			s.window = dialect.WindowFrom
		}
	}
	return s, nil
}

// Next returns the next batch, or (nil, nil) once the table is exhausted.
func (s *Stream) Next(ctx context.Context) (*Batch, error) {
	if s.done {
		return nil, nil
	}

	limit := s.chunk
	if s.maxRows > 0 && s.maxRows-s.emitted < limit {
		limit = s.maxRows - s.emitted
		if limit <= 0 {
			s.done = true
			return nil, nil
		}
	}

	query := s.d.ChunkQuery(s.table, s.window, limit)
	rows, err := s.db.QueryContext(ctx, query, KeysetArgs(s.lastKey)...)
	if err != nil {
		return nil, &ReadError{Table: s.table.Name, Err: err}
	}
	defer rows.Close()

	// The cursor only moves once the whole chunk has been read cleanly.
	// A failed batch is discarded, so the retry must see the same window
	// or the rows scanned before the failure would never be delivered.
	batch := &Batch{Table: s.table}
	keyIdx := s.table.KeyIndexes()
	var pendingKey []string
	var pendingNative []any
	for rows.Next() {
		values := make([]any, len(s.table.Fields))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ReadError{Table: s.table.Name, Err: fmt.Errorf("scan row: %w", err)}
		}
		batch.Rows = append(batch.Rows, values)

		if len(keyIdx) > 0 {
			pendingKey = make([]string, len(keyIdx))
			pendingNative = make([]any, len(keyIdx))
			for i, idx := range keyIdx {
				pendingKey[i] = FormatKey(values[idx])
				pendingNative[i] = normalizeKey(values[idx])
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{Table: s.table.Name, Err: err}
	}
	if pendingKey != nil {
		batch.LastKey = pendingKey
		s.lastKey = pendingNative
		// Later windows always exclude the key already emitted.
		s.window = dialect.WindowAfter
	}

	s.emitted += len(batch.Rows)
	if len(batch.Rows) < limit || !s.table.HasKey() {
		// Short chunk means exhaustion; keyless tables get one pass only
		// since there is nothing to key the next window on.
		s.done = true
	}
	if len(batch.Rows) == 0 {
		return nil, nil
	}
	return batch, nil
}

// KeysetArgs expands a key tuple into the bind order produced by
// dialect.KeysetPredicate: k1, then k1 k2, then k1 k2 k3.
func KeysetArgs(key []any) []any {
	var args []any
	for i := range key {
		for j := 0; j <= i; j++ {
			args = append(args, key[j])
		}
	}
	return args
}

// KeyBinds converts the persisted text form of a key tuple back into
// native bind values according to the key fields' kinds.
func KeyBinds(t *schema.Table, key []string) ([]any, error) {
	if len(key) != len(t.KeyFields) {
		return nil, fmt.Errorf("key %v does not match key fields %v of table %s", key, t.KeyFields, t.Name)
	}
	binds := make([]any, len(key))
	for i, name := range t.KeyFields {
		f := t.Field(name)
		switch f.Kind {
		case schema.KindNumber:
			if n, err := strconv.ParseInt(key[i], 10, 64); err == nil {
				binds[i] = n
			} else if fv, err := strconv.ParseFloat(key[i], 64); err == nil {
				binds[i] = fv
			} else {
				return nil, fmt.Errorf("key component %s=%q is not numeric", name, key[i])
			}
		case schema.KindDate, schema.KindTimestamp:
			ts, err := time.Parse("2006-01-02 15:04:05", key[i])
			if err != nil {
				if ts, err = time.Parse("2006-01-02", key[i]); err != nil {
					return nil, fmt.Errorf("key component %s=%q is not a date: %w", name, key[i], err)
				}
			}
			binds[i] = ts
		default:
			binds[i] = key[i]
		}
	}
	return binds, nil
}

// FormatKey renders one key component as stable text for checkpoints.
func FormatKey(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(val))
	case string:
		return strings.TrimSpace(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func normalizeKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
