package resolve_test

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"fm-sync/internal/resolve"
	"fm-sync/internal/schema"
	"fm-sync/internal/transcode"
)

func row(key string, values ...any) *transcode.Row {
	return &transcode.Row{
		Table:  &schema.Table{Name: "t", KeyFields: []string{"id"}},
		Key:    []string{key},
		Values: values,
	}
}

func TestDecideInsertWhenAbsent(t *testing.T) {
	r := resolve.New(true)
	d := r.Decide(row("1", "a"), nil)
	if d.Kind != resolve.Insert {
		t.Errorf("expected INSERT, got %s", d.Kind)
	}
}

func TestDecideSkipIdentical(t *testing.T) {
	r := resolve.New(true)
	name := gofakeit.Name()
	d := r.Decide(row("1", name, decimal.RequireFromString("12.50")), []any{name, []byte("12.5")})
	if d.Kind != resolve.SkipDuplicate {
		t.Fatalf("expected SKIP_DUPLICATE, got %s", d.Kind)
	}
	if d.Reason != "identical" {
		t.Errorf("expected identical reason, got %q", d.Reason)
	}
}

func TestDecideUpdateOnConflict(t *testing.T) {
	r := resolve.New(true)
	d := r.Decide(row("1", "new value"), []any{"old value"})
	if d.Kind != resolve.Update {
		t.Errorf("expected UPDATE, got %s", d.Kind)
	}
}

func TestDecideConflictWithoutOverwrite(t *testing.T) {
	r := resolve.New(false)
	d := r.Decide(row("1", "new value"), []any{"old value"})
	if d.Kind != resolve.SkipDuplicate {
		t.Fatalf("expected SKIP_DUPLICATE, got %s", d.Kind)
	}
	if d.Reason == "identical" {
		t.Error("conflict skip must not claim the rows were identical")
	}
}

func TestDecideRejectConversionErrors(t *testing.T) {
	r := resolve.New(true)
	bad := row("1", nil)
	bad.Errs = append(bad.Errs, &transcode.ConversionError{Field: "price", Value: "x"})
	d := r.Decide(bad, nil)
	if d.Kind != resolve.Reject {
		t.Fatalf("expected REJECT, got %s", d.Kind)
	}
	if d.Reason == "" {
		t.Error("reject must carry a reason")
	}
}

func TestDecideRejectNullKey(t *testing.T) {
	r := resolve.New(true)
	d := r.Decide(row("", "a"), nil)
	if d.Kind != resolve.Reject {
		t.Fatalf("expected REJECT, got %s", d.Kind)
	}
}

func TestValueComparisonFamilies(t *testing.T) {
	r := resolve.New(true)
	ts := time.Date(2020, 6, 1, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		name     string
		incoming []any
		existing []any
		want     resolve.Kind
	}{
		{"decimal vs driver bytes", []any{decimal.RequireFromString("100.00")}, []any{[]byte("100")}, resolve.SkipDuplicate},
		{"decimal differs", []any{decimal.RequireFromString("100.01")}, []any{[]byte("100")}, resolve.Update},
		{"time vs text", []any{ts}, []any{"2020-06-01 14:30:00"}, resolve.SkipDuplicate},
		{"string vs bytes", []any{"hello"}, []any{[]byte("hello")}, resolve.SkipDuplicate},
		{"nil vs nil", []any{nil}, []any{nil}, resolve.SkipDuplicate},
		{"nil vs value", []any{nil}, []any{"x"}, resolve.Update},
	}
	for _, c := range cases {
		d := r.Decide(row("1", c.incoming...), c.existing)
		if d.Kind != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, d.Kind)
		}
	}
}
