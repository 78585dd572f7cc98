// Package resolve decides what happens when an incoming row meets the
// target table: insert, update, skip, or reject.
package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fm-sync/internal/transcode"
)

type Kind int

const (
	Insert Kind = iota
	Update
	SkipDuplicate
	Reject
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case SkipDuplicate:
		return "SKIP_DUPLICATE"
	default:
		return "REJECT"
	}
}

// Decision is the verdict for one row. Reason is only set for skips and
// rejects, where the operator needs to know why the row did not land.
type Decision struct {
	Kind   Kind
	Reason string
}

// Resolver applies the conflict policy. With overwrite enabled (the
// default), a key match with differing values becomes a full-row UPDATE;
// with it disabled the existing row wins and the incoming one is skipped.
type Resolver struct {
	overwrite bool
}

func New(overwrite bool) *Resolver {
	return &Resolver{overwrite: overwrite}
}

// Decide resolves one transcoded row against the existing target row for
// the same key. existing is nil when the key is absent from the target.
func (r *Resolver) Decide(row *transcode.Row, existing []any) Decision {
	if row.Rejected() {
		msgs := make([]string, len(row.Errs))
		for i, e := range row.Errs {
			msgs[i] = e.Error()
		}
		return Decision{Kind: Reject, Reason: strings.Join(msgs, "; ")}
	}
	if row.KeyNull() {
		return Decision{Kind: Reject, Reason: "null primary key component"}
	}
	if existing == nil {
		return Decision{Kind: Insert}
	}
	if rowsEqual(row.Values, existing) {
		return Decision{Kind: SkipDuplicate, Reason: "identical"}
	}
	if !r.overwrite {
		return Decision{Kind: SkipDuplicate, Reason: "conflict, overwrite disabled"}
	}
	return Decision{Kind: Update}
}

func rowsEqual(incoming, existing []any) bool {
	if len(incoming) != len(existing) {
		return false
	}
	for i := range incoming {
		if !valueEqual(incoming[i], existing[i]) {
			return false
		}
	}
	return true
}

// valueEqual compares a transcoded value against a target-scanned one.
// Drivers hand back numbers and timestamps in varying shapes, so the
// comparison goes through a canonical form per family instead of ==.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Equal(db)
		}
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Unix() == tb.Unix()
		}
	}
	return asText(a) == asText(b)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case int64:
		return decimal.NewFromInt(val), true
	case float64:
		return decimal.NewFromFloat(val), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(val)))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return parseTimeText(val)
	case []byte:
		return parseTimeText(string(val))
	default:
		return time.Time{}, false
	}
}

func parseTimeText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func asText(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}
