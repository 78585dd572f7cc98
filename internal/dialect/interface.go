package dialect

import "fm-sync/internal/schema"

// Source abstracts the legacy database reached through the ODBC bridge.
// Queries use positional placeholders; KeysetArgs in the extract package
// mirrors the bind order produced by ChunkQuery's keyset predicate.
type Source interface {
	// Metadata catalog
	TablesQuery() string
	FieldsQuery() string // bind: table name
	NormalizeKind(sourceType string) schema.Kind

	// Row retrieval
	// ChunkQuery selects all fields of t ordered by its key fields,
	// bounded to limit rows. The window decides whether a keyset
	// predicate on the key tuple is prepended and how it compares.
	ChunkQuery(t *schema.Table, w Window, limit int) string
	// ContainerQuery selects only the key fields plus one extracted
	// container column, for image-only runs.
	ContainerQuery(t *schema.Table, blobCol string, w Window, limit int) string
	CountQuery(table string) string

	Quote(ident string) string
	Placeholder(index int) string
}

// Target abstracts the SQL database rows are loaded into.
type Target interface {
	Name() string

	// DDL
	CreateSchemaQuery(sch string) string
	CreateTableQuery(sch string, t *schema.Table) string
	AddPrimaryKeyQuery(sch string, t *schema.Table) string
	PrimaryKeyExistsQuery() string // bind: schema, table -> count
	TableExistsQuery() string      // bind: schema, table -> count
	ColumnsQuery() string          // bind: schema, table -> name, type, length, nullable

	// DML
	InsertQuery(sch, table string, cols []string) string
	UpdateQuery(sch, table string, cols, keys []string) string // binds: cols..., keys...
	SelectByKeyQuery(sch, table string, cols, keys []string) string
	CountQuery(sch, table string) string
	TruncateQuery(sch, table string) string

	// Type mapping
	TypeFor(f *schema.Field) string
	NormalizeType(sqlType string) string
	KindOf(sqlType string) schema.Kind // inverse of TypeFor, for round-trip checks

	Quote(ident string) string
	Placeholder(index int) string
}
