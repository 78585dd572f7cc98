package extract_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"strconv"
	"testing"
	"time"

	"fm-sync/internal/dialect"
	"fm-sync/internal/extract"
	"fm-sync/internal/schema"
)

func streamTable() *schema.Table {
	return &schema.Table{
		Name: "ratcatalogue",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "title", Kind: schema.KindText},
		},
		KeyFields: []string{"id"},
	}
}

// numberedSource holds n rows with keys 1..n.
func numberedSource(n int) *fakeSource {
	src := &fakeSource{cols: []string{"id", "title"}}
	for i := 1; i <= n; i++ {
		src.rows = append(src.rows, []driver.Value{int64(i), "row " + strconv.Itoa(i)})
	}
	return src
}

func collectKeys(t *testing.T, s *extract.Stream) []string {
	t.Helper()
	var keys []string
	for {
		b, err := s.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if b == nil {
			return keys
		}
		for _, row := range b.Rows {
			keys = append(keys, extract.FormatKey(row[0]))
		}
		if len(b.LastKey) != 1 || b.LastKey[0] != keys[len(keys)-1] {
			t.Errorf("batch LastKey %v does not match last row key %s", b.LastKey, keys[len(keys)-1])
		}
	}
}

func TestStreamChunkedIteration(t *testing.T) {
	src := numberedSource(6)
	db := newFakeDB(src)
	defer db.Close()

	s, err := extract.New(db, &dialect.FileMakerSource{}, streamTable(), 2, nil, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	keys := collectKeys(t, s)
	want := []string{"1", "2", "3", "4", "5", "6"}
	if len(keys) != len(want) {
		t.Fatalf("expected keys %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected keys %v, got %v", want, keys)
		}
	}
}

func TestStreamShortChunkStopsQuerying(t *testing.T) {
	src := numberedSource(3)
	db := newFakeDB(src)
	defer db.Close()

	s, err := extract.New(db, &dialect.FileMakerSource{}, streamTable(), 5, nil, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if b == nil || len(b.Rows) != 3 {
		t.Fatalf("expected one batch of 3 rows, got %v", b)
	}
	if b, err = s.Next(context.Background()); b != nil || err != nil {
		t.Fatalf("expected exhaustion, got %v, %v", b, err)
	}
	if src.queries != 1 {
		t.Errorf("a short chunk must end the stream without another query, saw %d queries", src.queries)
	}
}

func TestStreamKeylessSinglePass(t *testing.T) {
	src := &fakeSource{
		cols: []string{"message"},
		rows: [][]driver.Value{{"first"}, {"second"}},
	}
	db := newFakeDB(src)
	defer db.Close()

	keyless := &schema.Table{
		Name:   "log",
		Fields: []*schema.Field{{Name: "message", Kind: schema.KindText}},
	}
	s, err := extract.New(db, &dialect.FileMakerSource{}, keyless, 2, nil, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if b == nil || len(b.Rows) != 2 || b.LastKey != nil {
		t.Fatalf("expected one keyless batch of 2 rows, got %v", b)
	}
	if b, err = s.Next(context.Background()); b != nil || err != nil {
		t.Fatalf("expected exhaustion after one pass, got %v, %v", b, err)
	}
	if src.queries != 1 {
		t.Errorf("keyless tables get one pass, saw %d queries", src.queries)
	}
}

func TestStreamRetryRedeliversFailedChunk(t *testing.T) {
	src := numberedSource(6)
	src.failAfter = 2
	db := newFakeDB(src)
	defer db.Close()

	s, err := extract.New(db, &dialect.FileMakerSource{}, streamTable(), 10, nil, false, 0)
	if err != nil {
		t.Fatal(err)
	}

	b, err := s.Next(context.Background())
	var re *extract.ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected a read error, got %v", err)
	}
	if b != nil {
		t.Fatalf("a failed chunk must not yield a batch, got %v", b)
	}

	// The retry re-reads the same window, so the rows scanned before
	// the failure are delivered again rather than silently skipped.
	keys := collectKeys(t, s)
	want := []string{"1", "2", "3", "4", "5", "6"}
	if len(keys) != len(want) {
		t.Fatalf("retry lost rows: expected keys %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("retry lost rows: expected keys %v, got %v", want, keys)
		}
	}
}

func TestStreamInclusiveStartKey(t *testing.T) {
	src := numberedSource(6)
	db := newFakeDB(src)
	defer db.Close()

	s, err := extract.New(db, &dialect.FileMakerSource{}, streamTable(), 10, []string{"4"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	keys := collectKeys(t, s)
	if len(keys) != 3 || keys[0] != "4" || keys[2] != "6" {
		t.Fatalf("expected keys [4 5 6], got %v", keys)
	}
}

func TestKeysetArgsExpansion(t *testing.T) {
	got := extract.KeysetArgs([]any{"a", "b", "c"})
	want := []any{"a", "a", "b", "a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d args, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestKeysetArgsEmpty(t *testing.T) {
	if got := extract.KeysetArgs(nil); len(got) != 0 {
		t.Errorf("expected no args, got %v", got)
	}
}

func TestKeyBindsRoundTrip(t *testing.T) {
	table := &schema.Table{
		Name: "ratcatalogue",
		Fields: []*schema.Field{
			{Name: "image_no", Kind: schema.KindText},
			{Name: "seq", Kind: schema.KindNumber},
			{Name: "acquired", Kind: schema.KindDate},
		},
		KeyFields: []string{"image_no", "seq", "acquired"},
	}

	binds, err := extract.KeyBinds(table, []string{"IMG005", "42", "2020-06-01"})
	if err != nil {
		t.Fatal(err)
	}
	if binds[0] != "IMG005" {
		t.Errorf("text key: got %v", binds[0])
	}
	if binds[1] != int64(42) {
		t.Errorf("numeric key: expected int64 42, got %T %v", binds[1], binds[1])
	}
	ts, ok := binds[2].(time.Time)
	if !ok || ts.Format("2006-01-02") != "2020-06-01" {
		t.Errorf("date key: got %T %v", binds[2], binds[2])
	}

	// The text form of each bind must parse back to itself.
	for i, b := range binds {
		text := extract.FormatKey(b)
		round, err := extract.KeyBinds(table, []string{"IMG005", "42", "2020-06-01"})
		if err != nil {
			t.Fatal(err)
		}
		if extract.FormatKey(round[i]) != text {
			t.Errorf("key %d did not round-trip: %q", i, text)
		}
	}
}

func TestKeyBindsRejectsArityMismatch(t *testing.T) {
	table := &schema.Table{
		Name:      "t",
		Fields:    []*schema.Field{{Name: "id", Kind: schema.KindNumber}},
		KeyFields: []string{"id"},
	}
	if _, err := extract.KeyBinds(table, []string{"1", "2"}); err == nil {
		t.Error("expected error for wrong key arity")
	}
}

func TestKeyBindsRejectsBadNumber(t *testing.T) {
	table := &schema.Table{
		Name:      "t",
		Fields:    []*schema.Field{{Name: "id", Kind: schema.KindNumber}},
		KeyFields: []string{"id"},
	}
	if _, err := extract.KeyBinds(table, []string{"IMG005"}); err == nil {
		t.Error("expected error for non-numeric key component")
	}
}

func TestFormatKey(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  IMG005 ", "IMG005"},
		{[]byte("IMG005"), "IMG005"},
		{int64(42), "42"},
		{float64(42.5), "42.5"},
		{time.Date(2020, 6, 1, 14, 30, 0, 0, time.UTC), "2020-06-01 14:30:00"},
	}
	for _, c := range cases {
		if got := extract.FormatKey(c.in); got != c.want {
			t.Errorf("FormatKey(%v): expected %q, got %q", c.in, c.want, got)
		}
	}
}
