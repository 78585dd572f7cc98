package dialect

import (
	"fmt"
	"strings"

	"fm-sync/internal/schema"
)

type OracleTarget struct{}

func (d *OracleTarget) Name() string { return "oracle" }

func (d *OracleTarget) CreateSchemaQuery(sch string) string {
	// Oracle schemas are users; creating them needs DBA rights. Swallow
	// ORA-01920 (user exists) and ORA-01031 (insufficient privileges, the
	// schema usually pre-exists in that case) inside the block.
	return fmt.Sprintf(`BEGIN
	EXECUTE IMMEDIATE 'CREATE USER %s IDENTIFIED BY %s DEFAULT TABLESPACE USERS';
EXCEPTION WHEN OTHERS THEN
	IF SQLCODE NOT IN (-1920, -1031) THEN RAISE; END IF;
END;`, sch, sch)
}

func (d *OracleTarget) CreateTableQuery(sch string, t *schema.Table) string {
	body := buildCreateTable(d, "CREATE TABLE", sch, t)
	// ORA-00955: name already used by an existing object
	return fmt.Sprintf(`BEGIN
	EXECUTE IMMEDIATE q'[%s]';
EXCEPTION WHEN OTHERS THEN
	IF SQLCODE != -955 THEN RAISE; END IF;
END;`, body)
}

func (d *OracleTarget) AddPrimaryKeyQuery(sch string, t *schema.Table) string {
	return fmt.Sprintf("ALTER TABLE %s.%s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		d.Quote(sch), d.Quote(t.Name), d.Quote("pk_"+t.Name),
		strings.Join(QuoteAll(t.KeyFields, d.Quote), ", "))
}

func (d *OracleTarget) PrimaryKeyExistsQuery() string {
	return `SELECT COUNT(*) FROM ALL_CONSTRAINTS WHERE OWNER = UPPER(:1) AND TABLE_NAME = :2 AND CONSTRAINT_TYPE = 'P'`
}

func (d *OracleTarget) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM ALL_TABLES WHERE OWNER = UPPER(:1) AND TABLE_NAME = :2`
}

func (d *OracleTarget) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, DATA_TYPE, COALESCE(CHAR_LENGTH, 0), NULLABLE FROM ALL_TAB_COLUMNS WHERE OWNER = UPPER(:1) AND TABLE_NAME = :2 ORDER BY COLUMN_ID`
}

func (d *OracleTarget) InsertQuery(sch, table string, cols []string) string {
	vals := GeneratePlaceholders(len(cols), 0, d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		d.Quote(sch), d.Quote(table), strings.Join(QuoteAll(cols, d.Quote), ", "), vals)
}

func (d *OracleTarget) UpdateQuery(sch, table string, cols, keys []string) string {
	return buildUpdate(d, sch, table, cols, keys)
}

func (d *OracleTarget) SelectByKeyQuery(sch, table string, cols, keys []string) string {
	return buildSelectByKey(d, sch, table, cols, keys)
}

func (d *OracleTarget) CountQuery(sch, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *OracleTarget) TruncateQuery(sch, table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s.%s", d.Quote(sch), d.Quote(table))
}

func (d *OracleTarget) TypeFor(f *schema.Field) string {
	switch f.Kind {
	case schema.KindNumber:
		return "NUMBER"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		// no standalone TIME type; stored as HH:MM:SS text
		return "VARCHAR2(8)"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	case schema.KindContainer:
		return "VARCHAR2(255)"
	default:
		if f.Length > 0 && f.Length <= 4000 {
			return fmt.Sprintf("VARCHAR2(%d)", f.Length)
		}
		return "VARCHAR2(4000)"
	}
}

func (d *OracleTarget) NormalizeType(sqlType string) string {
	t := DefaultNormalizeType(sqlType)
	switch {
	case t == "number", t == "integer", t == "float", t == "binary_double":
		return "number"
	case strings.HasPrefix(t, "timestamp"):
		return "timestamp"
	case t == "char", t == "nchar", t == "nvarchar2", t == "clob":
		return "varchar2"
	}
	return t
}

func (d *OracleTarget) KindOf(sqlType string) schema.Kind {
	switch d.NormalizeType(sqlType) {
	case "number":
		return schema.KindNumber
	case "date":
		return schema.KindDate
	case "timestamp":
		return schema.KindTimestamp
	default:
		return schema.KindText
	}
}

func (d *OracleTarget) Quote(ident string) string {
	return `"` + strings.ToUpper(ident) + `"`
}

func (d *OracleTarget) Placeholder(index int) string {
	return fmt.Sprintf(":%d", index+1)
}
