package schema

import "fmt"

// Kind is the normalized type tag shared by source introspection and
// target DDL generation. Conversions are keyed on it, never on raw
// driver type strings.
type Kind string

const (
	KindText      Kind = "text"
	KindNumber    Kind = "number"
	KindDate      Kind = "date"
	KindTime      Kind = "time"
	KindTimestamp Kind = "timestamp"
	KindContainer Kind = "container"
)

type Field struct {
	Name       string
	SourceType string // raw type string from the source catalog
	Kind       Kind
	Length     int // size hint, 0 = unbounded
	Nullable   bool
}

type Table struct {
	Name      string
	Fields    []*Field
	KeyFields []string // primary key, config override wins over inference
	RowCount  int64    // -1 when unknown
}

func (t *Table) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (t *Table) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// ContainerFields returns the binary/container columns routed to the
// image pipeline instead of being loaded inline.
func (t *Table) ContainerFields() []*Field {
	var out []*Field
	for _, f := range t.Fields {
		if f.Kind == KindContainer {
			out = append(out, f)
		}
	}
	return out
}

func (t *Table) HasKey() bool { return len(t.KeyFields) > 0 }

// KeyIndexes maps each key field to its position in Fields.
func (t *Table) KeyIndexes() []int {
	idx := make([]int, 0, len(t.KeyFields))
	for _, k := range t.KeyFields {
		for i, f := range t.Fields {
			if f.Name == k {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

// DiscoveryError is fatal for the run: the source metadata catalog is
// unreachable or a requested table does not exist.
type DiscoveryError struct {
	Table string // empty for catalog-level failures
	Err   error
}

func (e *DiscoveryError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("schema discovery failed for table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("schema discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
