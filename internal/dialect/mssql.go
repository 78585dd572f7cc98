package dialect

import (
	"fmt"
	"strings"

	"fm-sync/internal/schema"
)

type MSSQLTarget struct{}

func (d *MSSQLTarget) Name() string { return "sqlserver" }

func (d *MSSQLTarget) CreateSchemaQuery(sch string) string {
	// No IF NOT EXISTS for schemas; guard via sys.schemas.
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT * FROM sys.schemas WHERE name = N'%s') EXEC('CREATE SCHEMA %s')",
		sch, d.Quote(sch))
}

func (d *MSSQLTarget) CreateTableQuery(sch string, t *schema.Table) string {
	body := buildCreateTable(d, "CREATE TABLE", sch, t)
	return fmt.Sprintf("IF OBJECT_ID(N'%s.%s', N'U') IS NULL %s", sch, t.Name, body)
}

func (d *MSSQLTarget) AddPrimaryKeyQuery(sch string, t *schema.Table) string {
	return fmt.Sprintf("ALTER TABLE %s.%s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		d.Quote(sch), d.Quote(t.Name), d.Quote("pk_"+t.Name),
		strings.Join(QuoteAll(t.KeyFields, d.Quote), ", "))
}

func (d *MSSQLTarget) PrimaryKeyExistsQuery() string {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 AND CONSTRAINT_TYPE = 'PRIMARY KEY'`
}

func (d *MSSQLTarget) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`
}

func (d *MSSQLTarget) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, DATA_TYPE, COALESCE(CHARACTER_MAXIMUM_LENGTH, 0), IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION`
}

func (d *MSSQLTarget) InsertQuery(sch, table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), 0, d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		d.Quote(sch), d.Quote(table), strings.Join(QuoteAll(cols, d.Quote), ", "), vals)
}

func (d *MSSQLTarget) UpdateQuery(sch, table string, cols, keys []string) string {
	return buildUpdate(d, sch, table, cols, keys)
}

func (d *MSSQLTarget) SelectByKeyQuery(sch, table string, cols, keys []string) string {
	return buildSelectByKey(d, sch, table, cols, keys)
}

func (d *MSSQLTarget) CountQuery(sch, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *MSSQLTarget) TruncateQuery(sch, table string) string {
	// DELETE instead of TRUNCATE: TRUNCATE fails on FK-referenced tables.
	return fmt.Sprintf("DELETE FROM %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *MSSQLTarget) TypeFor(f *schema.Field) string {
	switch f.Kind {
	case schema.KindNumber:
		return "decimal(38,10)"
	case schema.KindDate:
		return "date"
	case schema.KindTime:
		return "time"
	case schema.KindTimestamp:
		return "datetime2"
	case schema.KindContainer:
		return "nvarchar(255)"
	default:
		if f.Length > 0 && f.Length <= 4000 {
			return fmt.Sprintf("nvarchar(%d)", f.Length)
		}
		return "nvarchar(max)"
	}
}

func (d *MSSQLTarget) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	switch t {
	case "tinyint", "smallint", "int", "bigint", "float", "real", "numeric", "money":
		return "decimal"
	case "varchar", "char", "nchar", "text", "ntext":
		return "nvarchar"
	case "datetime", "smalldatetime":
		return "datetime2"
	}
	return t
}

func (d *MSSQLTarget) KindOf(sqlType string) schema.Kind {
	switch d.NormalizeType(sqlType) {
	case "decimal":
		return schema.KindNumber
	case "date":
		return schema.KindDate
	case "time":
		return schema.KindTime
	case "datetime2":
		return schema.KindTimestamp
	default:
		return schema.KindText
	}
}

func (d *MSSQLTarget) Quote(ident string) string {
	return "[" + ident + "]"
}

func (d *MSSQLTarget) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}
