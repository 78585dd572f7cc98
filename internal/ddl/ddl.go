// Package ddl generates and applies target schema objects for the
// staging and production schema pair, and renders them to review files.
package ddl

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fm-sync/internal/dialect"
	"fm-sync/internal/schema"
)

// ConflictError reports an existing target table whose shape differs from
// the generated one. The table is skipped for DDL but stays eligible for
// data loading; reconciling the shape is an operator decision.
type ConflictError struct {
	Schema string
	Table  string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("table %s.%s exists with a different shape: %s", e.Schema, e.Table, e.Detail)
}

// Statement is one generated DDL statement, tagged for file output.
type Statement struct {
	Table string // empty for schema-level statements
	Kind  string // "schema", "table", "pk"
	SQL   string
}

type Generator struct {
	d          dialect.Target
	staging    string
	production string
}

func New(d dialect.Target, staging, production string) *Generator {
	return &Generator{d: d, staging: staging, production: production}
}

func (g *Generator) Schemas() []string { return []string{g.staging, g.production} }

// Statements renders the full DDL set in apply order: schemas first, then
// per table the create and primary-key statements for both schemas.
func (g *Generator) Statements(tables []*schema.Table) []Statement {
	var out []Statement
	for _, sch := range g.Schemas() {
		out = append(out, Statement{Kind: "schema", SQL: g.d.CreateSchemaQuery(sch)})
	}
	for _, t := range tables {
		for _, sch := range g.Schemas() {
			out = append(out, Statement{Table: t.Name, Kind: "table", SQL: g.d.CreateTableQuery(sch, t)})
			if t.HasKey() {
				out = append(out, Statement{Table: t.Name, Kind: "pk", SQL: g.d.AddPrimaryKeyQuery(sch, t)})
			}
		}
	}
	return out
}

// Apply creates missing schemas, tables and primary keys. It is
// idempotent: existing matching objects are left alone, existing
// mismatched tables come back as conflicts without failing the run.
func (g *Generator) Apply(ctx context.Context, db *sql.DB, tables []*schema.Table) ([]*ConflictError, error) {
	for _, sch := range g.Schemas() {
		if _, err := db.ExecContext(ctx, g.d.CreateSchemaQuery(sch)); err != nil {
			return nil, fmt.Errorf("create schema %s: %w", sch, err)
		}
	}

	var conflicts []*ConflictError
	for _, t := range tables {
		for _, sch := range g.Schemas() {
			exists, err := g.tableExists(ctx, db, sch, t.Name)
			if err != nil {
				return conflicts, err
			}
			if exists {
				if detail, err := g.compareShape(ctx, db, sch, t); err != nil {
					return conflicts, err
				} else if detail != "" {
					conflicts = append(conflicts, &ConflictError{Schema: sch, Table: t.Name, Detail: detail})
					continue
				}
			} else {
				if _, err := db.ExecContext(ctx, g.d.CreateTableQuery(sch, t)); err != nil {
					return conflicts, fmt.Errorf("create table %s.%s: %w", sch, t.Name, err)
				}
			}
			if err := g.ensurePrimaryKey(ctx, db, sch, t); err != nil {
				return conflicts, err
			}
		}
	}
	return conflicts, nil
}

func (g *Generator) tableExists(ctx context.Context, db *sql.DB, sch, table string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, g.d.TableExistsQuery(), sch, table).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", sch, table, err)
	}
	return n > 0, nil
}

func (g *Generator) ensurePrimaryKey(ctx context.Context, db *sql.DB, sch string, t *schema.Table) error {
	if !t.HasKey() {
		return nil
	}
	var n int
	if err := db.QueryRowContext(ctx, g.d.PrimaryKeyExistsQuery(), sch, t.Name).Scan(&n); err != nil {
		return fmt.Errorf("check primary key on %s.%s: %w", sch, t.Name, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, g.d.AddPrimaryKeyQuery(sch, t)); err != nil {
		return fmt.Errorf("add primary key on %s.%s: %w", sch, t.Name, err)
	}
	return nil
}

// compareShape returns a human-readable mismatch description, or "" when
// the existing table is compatible with the generated one.
func (g *Generator) compareShape(ctx context.Context, db *sql.DB, sch string, t *schema.Table) (string, error) {
	existing, err := IntrospectTarget(ctx, db, g.d, sch, t.Name)
	if err != nil {
		return "", err
	}

	have := make(map[string]*schema.Field, len(existing.Fields))
	for _, f := range existing.Fields {
		have[f.Name] = f
	}
	for _, want := range t.Fields {
		got, ok := have[want.Name]
		if !ok {
			return fmt.Sprintf("column %s missing", want.Name), nil
		}
		wantType := g.d.NormalizeType(baseType(g.d.TypeFor(want)))
		gotType := g.d.NormalizeType(baseType(got.SourceType))
		if wantType != gotType {
			return fmt.Sprintf("column %s has type %s, want %s", want.Name, gotType, wantType), nil
		}
	}
	if len(existing.Fields) != len(t.Fields) {
		return fmt.Sprintf("has %d columns, want %d", len(existing.Fields), len(t.Fields)), nil
	}
	return "", nil
}

// IntrospectTarget reads one target table back into the schema model.
func IntrospectTarget(ctx context.Context, db *sql.DB, d dialect.Target, sch, table string) (*schema.Table, error) {
	rows, err := db.QueryContext(ctx, d.ColumnsQuery(), sch, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s.%s: %w", sch, table, err)
	}
	defer rows.Close()

	t := &schema.Table{Name: table, RowCount: -1}
	for rows.Next() {
		var name, typ, nullable string
		var length int
		if err := rows.Scan(&name, &typ, &length, &nullable); err != nil {
			return nil, fmt.Errorf("scan column of %s.%s: %w", sch, table, err)
		}
		t.Fields = append(t.Fields, &schema.Field{
			Name:       name,
			SourceType: typ,
			Kind:       d.KindOf(typ),
			Length:     length,
			Nullable:   !strings.EqualFold(nullable, "NO") && nullable != "0",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s.%s: %w", sch, table, err)
	}
	return t, nil
}

// WriteFiles renders one SQL file per table and schema, dated so repeated
// generations sort chronologically. Returns the written paths.
func (g *Generator) WriteFiles(dir, prefix string, tables []*schema.Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create ddl directory %s: %w", dir, err)
	}
	date := time.Now().Format("20060102")

	var paths []string
	kinds := map[string]string{g.staging: "staging", g.production: "production"}
	for _, t := range tables {
		for _, sch := range g.Schemas() {
			var b strings.Builder
			b.WriteString(g.d.CreateSchemaQuery(sch) + ";\n\n")
			b.WriteString(g.d.CreateTableQuery(sch, t) + ";\n")
			if t.HasKey() {
				b.WriteString("\n" + g.d.AddPrimaryKeyQuery(sch, t) + ";\n")
			}

			name := fmt.Sprintf("%s_%s_%s_%s.sql", date, prefix, t.Name, kinds[sch])
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
				return paths, fmt.Errorf("write ddl file %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func baseType(t string) string {
	if i := strings.IndexByte(t, '('); i >= 0 {
		return t[:i]
	}
	return t
}
