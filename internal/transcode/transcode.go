// Package transcode maps raw source rows to target-native values through
// a fixed per-kind conversion table. Unknown kinds fail closed; there is
// no per-value type sniffing.
package transcode

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fm-sync/internal/extract"
	"fm-sync/internal/schema"
)

// ConversionError marks one field value that could not be coerced. It is
// collected per row, never fatal to the batch; the row becomes a REJECT.
type ConversionError struct {
	Field string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert field %s value %v: %v", e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Truncation records a text value that exceeded the target length.
// Truncation is applied but never silent.
type Truncation struct {
	Field  string
	Limit  int
	Length int
}

// Blob is a container payload peeled off a row for the image pipeline.
type Blob struct {
	Field string
	Data  []byte
}

// Row is a source row mapped to target column values. Container columns
// carry the row key as an artifact reference instead of inline bytes.
type Row struct {
	Table       *schema.Table
	Key         []string // text key tuple, checkpoint form
	Values      []any    // bind values in field order
	Truncations []Truncation
	Errs        []*ConversionError
	Blobs       []Blob
}

func (r *Row) Rejected() bool { return len(r.Errs) > 0 }

// KeyText joins the key tuple into a single reference string.
func (r *Row) KeyText() string { return strings.Join(r.Key, "|") }

// KeyNull reports whether any primary-key component is missing.
func (r *Row) KeyNull() bool {
	if len(r.Key) == 0 {
		return true
	}
	for _, k := range r.Key {
		if k == "" {
			return true
		}
	}
	return false
}

type converter func(t *Transcoder, f *schema.Field, v any) (any, error)

// conversions is the fixed (source kind -> target) table. A kind with no
// entry cannot be transcoded, by design.
var conversions = map[schema.Kind]converter{
	schema.KindText:      (*Transcoder).toText,
	schema.KindNumber:    (*Transcoder).toDecimal,
	schema.KindDate:      (*Transcoder).toDate,
	schema.KindTime:      (*Transcoder).toClock,
	schema.KindTimestamp: (*Transcoder).toTimestamp,
}

type Transcoder struct {
	loc *time.Location
}

// New builds a transcoder. loc is the timezone naive source timestamps
// are interpreted in; it must be configured explicitly, never assumed UTC.
func New(loc *time.Location) *Transcoder {
	if loc == nil {
		loc = time.Local
	}
	return &Transcoder{loc: loc}
}

// Batch transcodes every row of an extracted batch.
func (t *Transcoder) Batch(b *extract.Batch) []*Row {
	out := make([]*Row, 0, len(b.Rows))
	for _, raw := range b.Rows {
		out = append(out, t.Row(b.Table, raw))
	}
	return out
}

// Row transcodes a single raw source row.
func (t *Transcoder) Row(table *schema.Table, raw []any) *Row {
	row := &Row{Table: table, Values: make([]any, len(table.Fields))}

	for _, idx := range table.KeyIndexes() {
		row.Key = append(row.Key, extract.FormatKey(raw[idx]))
	}

	for i, f := range table.Fields {
		v := raw[i]
		if f.Kind == schema.KindContainer {
			// Reference by row key; bytes go to the image pipeline.
			if data, ok := v.([]byte); ok && len(data) > 0 {
				row.Blobs = append(row.Blobs, Blob{Field: f.Name, Data: data})
			}
			row.Values[i] = row.KeyText()
			continue
		}
		if v == nil {
			row.Values[i] = nil
			continue
		}

		conv, ok := conversions[f.Kind]
		if !ok {
			row.Errs = append(row.Errs, &ConversionError{Field: f.Name, Value: v,
				Err: fmt.Errorf("no conversion for kind %s", f.Kind)})
			continue
		}
		converted, err := conv(t, f, v)
		if err != nil {
			row.Errs = append(row.Errs, &ConversionError{Field: f.Name, Value: v, Err: err})
			continue
		}

		if f.Kind == schema.KindText && f.Length > 0 {
			s := converted.(string)
			if runes := []rune(s); len(runes) > f.Length {
				row.Truncations = append(row.Truncations, Truncation{Field: f.Name, Limit: f.Length, Length: len(runes)})
				converted = string(runes[:f.Length])
			}
		}
		row.Values[i] = converted
	}
	return row
}

func (t *Transcoder) toText(f *schema.Field, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case time.Time:
		return val.Format("2006-01-02 15:04:05"), nil
	case int64, float64, bool:
		return fmt.Sprintf("%v", val), nil
	default:
		return nil, fmt.Errorf("unsupported text source type %T", v)
	}
}

func (t *Transcoder) toDecimal(f *schema.Field, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return parseDecimal(val)
	case []byte:
		return parseDecimal(string(val))
	case int64:
		return decimal.NewFromInt(val), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	default:
		return nil, fmt.Errorf("unsupported numeric source type %T", v)
	}
}

func parseDecimal(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

func (t *Transcoder) toDate(f *schema.Field, v any) (any, error) {
	ts, err := t.parseTime(v, "2006-01-02")
	if err != nil {
		return nil, err
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, t.loc), nil
}

func (t *Transcoder) toClock(f *schema.Field, v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val.Format("15:04:05"), nil
	case string, []byte:
		s := strings.TrimSpace(asString(val))
		if _, err := time.Parse("15:04:05", s); err != nil {
			return nil, fmt.Errorf("not a time of day: %q", s)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported time source type %T", v)
	}
}

func (t *Transcoder) toTimestamp(f *schema.Field, v any) (any, error) {
	ts, err := t.parseTime(v, "2006-01-02 15:04:05")
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// parseTime rebases any naive timestamp into the configured location.
func (t *Transcoder) parseTime(v any, layout string) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return time.Date(val.Year(), val.Month(), val.Day(),
			val.Hour(), val.Minute(), val.Second(), val.Nanosecond(), t.loc), nil
	case string, []byte:
		s := strings.TrimSpace(asString(val))
		for _, l := range []string{layout, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.ParseInLocation(l, s, t.loc); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("not a date/timestamp: %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported temporal source type %T", v)
	}
}

func asString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v.(string)
}
