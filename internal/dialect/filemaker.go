package dialect

import (
	"fmt"
	"strings"

	"fm-sync/internal/schema"
)

// FileMakerSource speaks the SQL subset FileMaker Pro exposes over ODBC.
// Metadata comes from the FileMaker_* catalog tables; container columns
// must be read through GetAs() to obtain the embedded binary payload.
type FileMakerSource struct{}

func (d *FileMakerSource) TablesQuery() string {
	return `SELECT DISTINCT BaseTableName FROM FileMaker_BaseTableFields`
}

func (d *FileMakerSource) FieldsQuery() string {
	// FieldClass filters out calculated/summary fields that cannot be
	// transferred row-by-row.
	return `SELECT FieldName, FieldType FROM FileMaker_Fields WHERE TableName = ? AND FieldClass = 'Normal' ORDER BY FieldId`
}

func (d *FileMakerSource) NormalizeKind(sourceType string) schema.Kind {
	t := strings.ToLower(strings.TrimSpace(sourceType))
	switch {
	case strings.Contains(t, "binary"), strings.Contains(t, "container"):
		return schema.KindContainer
	case strings.Contains(t, "timestamp"):
		return schema.KindTimestamp
	case strings.Contains(t, "date"):
		return schema.KindDate
	case strings.Contains(t, "time"):
		return schema.KindTime
	case strings.Contains(t, "decimal"), strings.Contains(t, "numeric"),
		strings.Contains(t, "number"), strings.Contains(t, "int"),
		strings.Contains(t, "double"), strings.Contains(t, "float"):
		return schema.KindNumber
	default:
		return schema.KindText
	}
}

func (d *FileMakerSource) ChunkQuery(t *schema.Table, w Window, limit int) string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		if f.Kind == schema.KindContainer {
			// GetAs unwraps the container metadata down to the JPEG payload.
			cols[i] = fmt.Sprintf("GetAs(%s,'JPEG') AS %s", d.Quote(f.Name), d.Quote(f.Name))
		} else {
			cols[i] = d.Quote(f.Name)
		}
	}
	return d.windowed(t, strings.Join(cols, ", "), w, limit)
}

func (d *FileMakerSource) ContainerQuery(t *schema.Table, blobCol string, w Window, limit int) string {
	cols := QuoteAll(t.KeyFields, d.Quote)
	cols = append(cols, fmt.Sprintf("GetAs(%s,'JPEG') AS %s", d.Quote(blobCol), d.Quote(blobCol)))
	return d.windowed(t, strings.Join(cols, ", "), w, limit)
}

func (d *FileMakerSource) windowed(t *schema.Table, cols string, w Window, limit int) string {
	q := fmt.Sprintf("SELECT %s FROM %s", cols, d.Quote(t.Name))
	if w != WindowAll && t.HasKey() {
		q += " WHERE " + KeysetPredicate(t.KeyFields, d.Quote, d.Placeholder, 0, w == WindowFrom)
	}
	if t.HasKey() {
		q += " ORDER BY " + strings.Join(QuoteAll(t.KeyFields, d.Quote), " ASC, ") + " ASC"
	}
	return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", q, limit)
}

func (d *FileMakerSource) CountQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", d.Quote(table))
}

func (d *FileMakerSource) Quote(ident string) string {
	return `"` + ident + `"`
}

func (d *FileMakerSource) Placeholder(index int) string {
	return "?"
}
