package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Catalog is the slice of dialect.Source that introspection needs.
// Declared here to keep the dependency pointing dialect -> schema.
type Catalog interface {
	TablesQuery() string
	FieldsQuery() string
	NormalizeKind(sourceType string) Kind
}

// Discover reads the source metadata catalog and builds the normalized
// schema model. filter narrows the table set; a requested table that does
// not exist is a DiscoveryError, as is any catalog read failure. Both are
// fatal for the run.
func Discover(ctx context.Context, db *sql.DB, cat Catalog, filter []string, pkOverrides map[string][]string) ([]*Table, error) {
	rows, err := db.QueryContext(ctx, cat.TablesQuery())
	if err != nil {
		return nil, &DiscoveryError{Err: fmt.Errorf("query table catalog: %w", err)}
	}
	defer rows.Close()

	tableMap := make(map[string]*Table)
	var tables []*Table
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, &DiscoveryError{Err: fmt.Errorf("scan table name: %w", err)}
		}
		if !name.Valid || name.String == "" {
			continue
		}
		t := &Table{Name: sanitizeName(name.String), RowCount: -1}
		tableMap[strings.ToUpper(t.Name)] = t
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &DiscoveryError{Err: fmt.Errorf("iterate table catalog: %w", err)}
	}

	if len(filter) > 0 {
		var selected []*Table
		for _, want := range filter {
			t, ok := tableMap[strings.ToUpper(sanitizeName(want))]
			if !ok {
				return nil, &DiscoveryError{Table: want, Err: fmt.Errorf("table not found in source catalog")}
			}
			selected = append(selected, t)
		}
		tables = selected
	}

	for _, t := range tables {
		if err := discoverFields(ctx, db, cat, t); err != nil {
			return nil, err
		}
		if pk, ok := pkOverrides[t.Name]; ok {
			for _, k := range pk {
				if t.Field(k) == nil {
					return nil, &DiscoveryError{Table: t.Name, Err: fmt.Errorf("configured key field %s does not exist", k)}
				}
			}
			t.KeyFields = pk
		} else {
			t.KeyFields = inferKey(t)
		}
		// Key fields are non-null by invariant.
		for _, k := range t.KeyFields {
			t.Field(k).Nullable = false
		}
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

func discoverFields(ctx context.Context, db *sql.DB, cat Catalog, t *Table) error {
	rows, err := db.QueryContext(ctx, cat.FieldsQuery(), t.Name)
	if err != nil {
		return &DiscoveryError{Table: t.Name, Err: fmt.Errorf("query field catalog: %w", err)}
	}
	defer rows.Close()

	for rows.Next() {
		var fName, fType sql.NullString
		if err := rows.Scan(&fName, &fType); err != nil {
			return &DiscoveryError{Table: t.Name, Err: fmt.Errorf("scan field: %w", err)}
		}
		if !fName.Valid {
			continue
		}
		t.Fields = append(t.Fields, &Field{
			Name:       sanitizeName(fName.String),
			SourceType: fType.String,
			Kind:       cat.NormalizeKind(fType.String),
			Length:     parseLength(fType.String),
			Nullable:   true,
		})
	}
	if err := rows.Err(); err != nil {
		return &DiscoveryError{Table: t.Name, Err: fmt.Errorf("iterate field catalog: %w", err)}
	}
	if len(t.Fields) == 0 {
		return &DiscoveryError{Table: t.Name, Err: fmt.Errorf("no transferable fields")}
	}
	return nil
}

// inferKey guesses a single-column key from naming conventions. Sources
// without declared key metadata need the per-table config override; the
// guess only covers the common id/_no patterns.
func inferKey(t *Table) []string {
	candidates := []string{"id", t.Name + "_id"}
	for _, c := range candidates {
		if f := t.Field(c); f != nil && f.Kind != KindContainer {
			return []string{c}
		}
	}
	for _, f := range t.Fields {
		n := strings.ToLower(f.Name)
		if strings.HasSuffix(n, "_id") || strings.HasSuffix(n, "_no") {
			return []string{f.Name}
		}
	}
	return nil
}

func sanitizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// parseLength extracts n from a "type(n)" source type string.
func parseLength(sourceType string) int {
	open := strings.IndexByte(sourceType, '(')
	close := strings.IndexByte(sourceType, ')')
	if open < 0 || close <= open+1 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(sourceType[open+1 : close]))
	if err != nil {
		return 0
	}
	return n
}
