// Package load writes resolved rows into the target, one transaction per
// batch. A batch lands fully or not at all; the checkpoint for it is the
// caller's to advance only after Commit returns.
package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fm-sync/internal/dialect"
	"fm-sync/internal/resolve"
	"fm-sync/internal/schema"
	"fm-sync/internal/transcode"
)

// CommitError marks a batch whose transaction could not be applied. The
// transaction is rolled back before this is returned; the batch may be
// retried as a whole.
type CommitError struct {
	Table string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("batch load failed for table %s: %v", e.Table, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Reject is one row that was refused, kept for the run report.
type Reject struct {
	Key    string
	Reason string
}

// Result tallies one batch by decision. Every incoming row lands in
// exactly one counter.
type Result struct {
	Inserted   int64
	Updated    int64
	Duplicates int64
	Rejected   int64
	Truncated  int64
	Rejects    []Reject
}

func (r *Result) Add(o *Result) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Duplicates += o.Duplicates
	r.Rejected += o.Rejected
	r.Truncated += o.Truncated
	r.Rejects = append(r.Rejects, o.Rejects...)
}

func (r *Result) Rows() int64 {
	return r.Inserted + r.Updated + r.Duplicates + r.Rejected
}

type Loader struct {
	db       *sql.DB
	d        dialect.Target
	schema   string
	resolver *resolve.Resolver
}

func New(db *sql.DB, d dialect.Target, schemaName string, resolver *resolve.Resolver) *Loader {
	return &Loader{db: db, d: d, schema: schemaName, resolver: resolver}
}

// LoadBatch resolves and applies one batch inside a single transaction.
// The existence check runs in the same transaction as the writes, so a
// row inserted earlier in the batch is visible to later duplicates.
func (l *Loader) LoadBatch(ctx context.Context, table *schema.Table, rows []*transcode.Row) (*Result, error) {
	cols := table.FieldNames()
	keys := table.KeyFields

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &CommitError{Table: table.Name, Err: fmt.Errorf("begin transaction: %w", err)}
	}

	res := &Result{}
	selectQ := l.d.SelectByKeyQuery(l.schema, table.Name, cols, keys)
	insertQ := l.d.InsertQuery(l.schema, table.Name, cols)
	updateQ := l.d.UpdateQuery(l.schema, table.Name, cols, keys)
	keyIdx := table.KeyIndexes()

	for _, row := range rows {
		res.Truncated += int64(len(row.Truncations))

		var existing []any
		if !row.Rejected() && !row.KeyNull() && table.HasKey() {
			keyVals := make([]any, len(keyIdx))
			for i, idx := range keyIdx {
				keyVals[i] = row.Values[idx]
			}
			existing, err = l.fetchExisting(ctx, tx, selectQ, len(cols), keyVals)
			if err != nil {
				tx.Rollback()
				return nil, &CommitError{Table: table.Name, Err: err}
			}

			switch d := l.resolver.Decide(row, existing); d.Kind {
			case resolve.Insert:
				if _, err := tx.ExecContext(ctx, insertQ, row.Values...); err != nil {
					tx.Rollback()
					return nil, &CommitError{Table: table.Name, Err: fmt.Errorf("insert key %s: %w", row.KeyText(), err)}
				}
				res.Inserted++
			case resolve.Update:
				args := append(append([]any{}, row.Values...), keyVals...)
				if _, err := tx.ExecContext(ctx, updateQ, args...); err != nil {
					tx.Rollback()
					return nil, &CommitError{Table: table.Name, Err: fmt.Errorf("update key %s: %w", row.KeyText(), err)}
				}
				res.Updated++
			case resolve.SkipDuplicate:
				res.Duplicates++
			case resolve.Reject:
				res.Rejected++
				res.Rejects = append(res.Rejects, Reject{Key: row.KeyText(), Reason: d.Reason})
			}
			continue
		}

		if table.HasKey() {
			// Rejected upstream or null key: resolver produces the reason.
			d := l.resolver.Decide(row, nil)
			res.Rejected++
			res.Rejects = append(res.Rejects, Reject{Key: row.KeyText(), Reason: d.Reason})
			continue
		}

		// Keyless table: append-only, no duplicate detection possible.
		if row.Rejected() {
			d := l.resolver.Decide(row, nil)
			res.Rejected++
			res.Rejects = append(res.Rejects, Reject{Key: row.KeyText(), Reason: d.Reason})
			continue
		}
		if _, err := tx.ExecContext(ctx, insertQ, row.Values...); err != nil {
			tx.Rollback()
			return nil, &CommitError{Table: table.Name, Err: fmt.Errorf("insert: %w", err)}
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return nil, &CommitError{Table: table.Name, Err: fmt.Errorf("commit: %w", err)}
	}
	return res, nil
}

func (l *Loader) fetchExisting(ctx context.Context, tx *sql.Tx, query string, ncols int, keyVals []any) ([]any, error) {
	values := make([]any, ncols)
	ptrs := make([]any, ncols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	err := tx.QueryRowContext(ctx, query, keyVals...).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup existing row: %w", err)
	}
	return values, nil
}

// Truncate empties the staging table before a fresh full migration.
func (l *Loader) Truncate(ctx context.Context, table string) error {
	if _, err := l.db.ExecContext(ctx, l.d.TruncateQuery(l.schema, table)); err != nil {
		return fmt.Errorf("truncate %s.%s: %w", l.schema, table, err)
	}
	return nil
}

// Count returns the target row count for status reporting.
func (l *Loader) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, l.d.CountQuery(l.schema, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", l.schema, table, err)
	}
	return n, nil
}
