package extract

import (
	"context"
	"database/sql"
	"fmt"

	"fm-sync/internal/dialect"
	"fm-sync/internal/schema"
)

// BlobRow is one container payload with its owning row key.
type BlobRow struct {
	Key  []string
	Data []byte
}

// BlobStream pulls a single container column in key order, for image-only
// runs that skip the row pipeline entirely.
type BlobStream struct {
	db      *sql.DB
	d       dialect.Source
	table   *schema.Table
	col     string
	chunk   int
	lastKey []any
	window  dialect.Window
	done    bool
}

// NewBlobStream streams one container column. A provided startKey is
// inclusive, matching the explicit --start-from semantics.
func NewBlobStream(db *sql.DB, d dialect.Source, table *schema.Table, col string, chunk int, startKey []string) (*BlobStream, error) {
	if !table.HasKey() {
		return nil, fmt.Errorf("table %s has no key, cannot stream containers", table.Name)
	}
	if f := table.Field(col); f == nil || f.Kind != schema.KindContainer {
		return nil, fmt.Errorf("field %s of table %s is not a container", col, table.Name)
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	s := &BlobStream{db: db, d: d, table: table, col: col, chunk: chunk, window: dialect.WindowAll}
	if len(startKey) > 0 {
		binds, err := KeyBinds(table, startKey)
		if err != nil {
			return nil, err
		}
		s.lastKey = binds
		s.window = dialect.WindowFrom
	}
	return s, nil
}

// Next returns the next chunk of blob rows, or (nil, nil) when exhausted.
// Rows whose container is empty are skipped but still advance the key.
func (s *BlobStream) Next(ctx context.Context) ([]BlobRow, error) {
	if s.done {
		return nil, nil
	}

	query := s.d.ContainerQuery(s.table, s.col, s.window, s.chunk)
	rows, err := s.db.QueryContext(ctx, query, KeysetArgs(s.lastKey)...)
	if err != nil {
		return nil, &ReadError{Table: s.table.Name, Err: err}
	}
	defer rows.Close()

	// As in Stream.Next, the cursor holds still until the chunk has been
	// read cleanly so a retried chunk covers the same window.
	nkeys := len(s.table.KeyFields)
	var out []BlobRow
	var pendingNative []any
	scanned := 0
	for rows.Next() {
		values := make([]any, nkeys+1)
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ReadError{Table: s.table.Name, Err: fmt.Errorf("scan row: %w", err)}
		}
		scanned++

		key := make([]string, nkeys)
		native := make([]any, nkeys)
		for i := 0; i < nkeys; i++ {
			key[i] = FormatKey(values[i])
			native[i] = normalizeKey(values[i])
		}
		pendingNative = native

		if data, ok := values[nkeys].([]byte); ok && len(data) > 0 {
			out = append(out, BlobRow{Key: key, Data: data})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{Table: s.table.Name, Err: err}
	}
	if pendingNative != nil {
		s.lastKey = pendingNative
		s.window = dialect.WindowAfter
	}

	if scanned < s.chunk {
		s.done = true
	}
	if scanned == 0 {
		return nil, nil
	}
	return out, nil
}
