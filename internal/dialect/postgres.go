package dialect

import (
	"fmt"
	"strings"

	"fm-sync/internal/schema"
)

type PostgresTarget struct{}

func (d *PostgresTarget) Name() string { return "postgres" }

func (d *PostgresTarget) CreateSchemaQuery(sch string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.Quote(sch))
}

func (d *PostgresTarget) CreateTableQuery(sch string, t *schema.Table) string {
	return buildCreateTable(d, "CREATE TABLE IF NOT EXISTS", sch, t)
}

func (d *PostgresTarget) AddPrimaryKeyQuery(sch string, t *schema.Table) string {
	return fmt.Sprintf("ALTER TABLE %s.%s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		d.Quote(sch), d.Quote(t.Name), d.Quote("pk_"+t.Name),
		strings.Join(QuoteAll(t.KeyFields, d.Quote), ", "))
}

func (d *PostgresTarget) PrimaryKeyExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.table_constraints WHERE table_schema = $1 AND table_name = $2 AND constraint_type = 'PRIMARY KEY'`
}

func (d *PostgresTarget) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`
}

func (d *PostgresTarget) ColumnsQuery() string {
	return `SELECT column_name, udt_name, COALESCE(character_maximum_length, 0), is_nullable FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`
}

func (d *PostgresTarget) InsertQuery(sch, table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), 0, d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		d.Quote(sch), d.Quote(table), strings.Join(QuoteAll(cols, d.Quote), ", "), vals)
}

func (d *PostgresTarget) UpdateQuery(sch, table string, cols, keys []string) string {
	return buildUpdate(d, sch, table, cols, keys)
}

func (d *PostgresTarget) SelectByKeyQuery(sch, table string, cols, keys []string) string {
	return buildSelectByKey(d, sch, table, cols, keys)
}

func (d *PostgresTarget) CountQuery(sch, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *PostgresTarget) TruncateQuery(sch, table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s.%s CASCADE", d.Quote(sch), d.Quote(table))
}

func (d *PostgresTarget) TypeFor(f *schema.Field) string {
	switch f.Kind {
	case schema.KindNumber:
		return "numeric"
	case schema.KindDate:
		return "date"
	case schema.KindTime:
		return "time"
	case schema.KindTimestamp:
		return "timestamp"
	case schema.KindContainer:
		// container columns carry the artifact key, not the bytes
		return "text"
	default:
		if f.Length > 0 {
			return fmt.Sprintf("varchar(%d)", f.Length)
		}
		return "text"
	}
}

func (d *PostgresTarget) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	switch t {
	case "int2", "int4", "int8", "float4", "float8", "decimal":
		return "numeric"
	case "bpchar":
		return "varchar"
	case "timestamptz":
		return "timestamp"
	case "timetz":
		return "time"
	}
	return t
}

func (d *PostgresTarget) KindOf(sqlType string) schema.Kind {
	switch d.NormalizeType(sqlType) {
	case "numeric":
		return schema.KindNumber
	case "date":
		return schema.KindDate
	case "time":
		return schema.KindTime
	case "timestamp":
		return schema.KindTimestamp
	default:
		return schema.KindText
	}
}

func (d *PostgresTarget) Quote(ident string) string {
	return `"` + ident + `"`
}

func (d *PostgresTarget) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}
