package dialect

import (
	"fmt"
	"strings"

	"fm-sync/internal/schema"
)

// GeneratePlaceholders builds a comma-separated placeholder list using the
// dialect's placeholder function, starting at index start.
func GeneratePlaceholders(count, start int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(start + i)
	}
	return strings.Join(placeholders, ", ")
}

// QuoteAll quotes every identifier with the dialect's quote function.
func QuoteAll(idents []string, quote func(string) string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = quote(id)
	}
	return out
}

// Window selects how a chunk query bounds its key range. Checkpoint
// resume excludes the last committed key; an explicit start key is
// inclusive so the named row itself is processed.
type Window int

const (
	WindowAll   Window = iota // no key bound, start of table
	WindowAfter               // key tuple strictly greater than the bound
	WindowFrom                // key tuple greater than or equal to the bound
)

// KeysetPredicate builds a "key tuple greater than" predicate without row
// constructors, so it works on sources that only speak basic SQL:
//
//	(k1 > ?) OR (k1 = ? AND k2 > ?) OR ...
//
// With inclusive set, the final comparison becomes >=, turning the whole
// tuple comparison into greater-or-equal. Bind order is k1, then k1 k2,
// then k1 k2 k3, matching extract.KeysetArgs.
func KeysetPredicate(keys []string, quote func(string) string, placeholder func(int) string, start int, inclusive bool) string {
	idx := start
	var terms []string
	for i := range keys {
		var conds []string
		for j := 0; j <= i; j++ {
			op := "="
			if j == i {
				op = ">"
				if inclusive && i == len(keys)-1 {
					op = ">="
				}
			}
			conds = append(conds, quote(keys[j])+" "+op+" "+placeholder(idx))
			idx++
		}
		terms = append(terms, "("+strings.Join(conds, " AND ")+")")
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

// DefaultNormalizeType lowercases a raw type name.
func DefaultNormalizeType(sqlType string) string {
	return strings.ToLower(strings.TrimSpace(sqlType))
}

// buildCreateTable renders a column list in declaration order. Key fields
// are forced NOT NULL so the primary-key constraint can attach later.
func buildCreateTable(d Target, prefix, sch string, t *schema.Table) string {
	keySet := make(map[string]bool, len(t.KeyFields))
	for _, k := range t.KeyFields {
		keySet[k] = true
	}

	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		def := fmt.Sprintf("\t%s %s", d.Quote(f.Name), d.TypeFor(f))
		if keySet[f.Name] || !f.Nullable {
			def += " NOT NULL"
		}
		cols[i] = def
	}
	return fmt.Sprintf("%s %s.%s (\n%s\n)", prefix, d.Quote(sch), d.Quote(t.Name), strings.Join(cols, ",\n"))
}

func buildUpdate(d Target, sch, table string, cols, keys []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = d.Quote(c) + " = " + d.Placeholder(i)
	}
	wheres := make([]string, len(keys))
	for i, k := range keys {
		wheres[i] = d.Quote(k) + " = " + d.Placeholder(len(cols)+i)
	}
	return fmt.Sprintf("UPDATE %s.%s SET %s WHERE %s",
		d.Quote(sch), d.Quote(table), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
}

func buildSelectByKey(d Target, sch, table string, cols, keys []string) string {
	wheres := make([]string, len(keys))
	for i, k := range keys {
		wheres[i] = d.Quote(k) + " = " + d.Placeholder(i)
	}
	return fmt.Sprintf("SELECT %s FROM %s.%s WHERE %s",
		strings.Join(QuoteAll(cols, d.Quote), ", "), d.Quote(sch), d.Quote(table), strings.Join(wheres, " AND "))
}
