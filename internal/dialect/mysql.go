package dialect

import (
	"fmt"
	"strings"

	"fm-sync/internal/schema"
)

type MysqlTarget struct{}

func (d *MysqlTarget) Name() string { return "mysql" }

func (d *MysqlTarget) CreateSchemaQuery(sch string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.Quote(sch))
}

func (d *MysqlTarget) CreateTableQuery(sch string, t *schema.Table) string {
	return buildCreateTable(d, "CREATE TABLE IF NOT EXISTS", sch, t)
}

func (d *MysqlTarget) AddPrimaryKeyQuery(sch string, t *schema.Table) string {
	return fmt.Sprintf("ALTER TABLE %s.%s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		d.Quote(sch), d.Quote(t.Name), d.Quote("pk_"+t.Name),
		strings.Join(QuoteAll(t.KeyFields, d.Quote), ", "))
}

func (d *MysqlTarget) PrimaryKeyExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.TABLE_CONSTRAINTS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_TYPE = 'PRIMARY KEY'`
}

func (d *MysqlTarget) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`
}

func (d *MysqlTarget) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, DATA_TYPE, COALESCE(CHARACTER_MAXIMUM_LENGTH, 0), IS_NULLABLE FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
}

func (d *MysqlTarget) InsertQuery(sch, table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), 0, d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		d.Quote(sch), d.Quote(table), strings.Join(QuoteAll(cols, d.Quote), ", "), vals)
}

func (d *MysqlTarget) UpdateQuery(sch, table string, cols, keys []string) string {
	return buildUpdate(d, sch, table, cols, keys)
}

func (d *MysqlTarget) SelectByKeyQuery(sch, table string, cols, keys []string) string {
	return buildSelectByKey(d, sch, table, cols, keys)
}

func (d *MysqlTarget) CountQuery(sch, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *MysqlTarget) TruncateQuery(sch, table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *MysqlTarget) TypeFor(f *schema.Field) string {
	switch f.Kind {
	case schema.KindNumber:
		// FileMaker numbers are arbitrary-precision decimals
		return "decimal(38,10)"
	case schema.KindDate:
		return "date"
	case schema.KindTime:
		return "time"
	case schema.KindTimestamp:
		return "datetime"
	case schema.KindContainer:
		return "varchar(255)"
	default:
		if f.Length > 0 && f.Length <= 16383 {
			return fmt.Sprintf("varchar(%d)", f.Length)
		}
		return "text"
	}
}

func (d *MysqlTarget) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	switch t {
	case "tinyint", "smallint", "mediumint", "int", "bigint", "float", "double", "numeric":
		return "decimal"
	case "char", "tinytext", "mediumtext", "longtext":
		if t == "char" {
			return "varchar"
		}
		return "text"
	case "timestamp":
		return "datetime"
	}
	return t
}

func (d *MysqlTarget) KindOf(sqlType string) schema.Kind {
	switch d.NormalizeType(sqlType) {
	case "decimal":
		return schema.KindNumber
	case "date":
		return schema.KindDate
	case "time":
		return schema.KindTime
	case "datetime":
		return schema.KindTimestamp
	default:
		return schema.KindText
	}
}

func (d *MysqlTarget) Quote(ident string) string {
	return "`" + ident + "`"
}

func (d *MysqlTarget) Placeholder(index int) string {
	return "?"
}
