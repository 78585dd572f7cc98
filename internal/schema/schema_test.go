package schema

import "testing"

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"RatCatalogue":  "ratcatalogue",
		"Order Lines":   "order_lines",
		"  Customers  ": "customers",
		"already_lower": "already_lower",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestParseLength(t *testing.T) {
	cases := map[string]int{
		"varchar(255)": 255,
		"varchar":      0,
		"decimal(10)":  10,
		"text()":       0,
		"varchar(x)":   0,
	}
	for in, want := range cases {
		if got := parseLength(in); got != want {
			t.Errorf("parseLength(%q): expected %d, got %d", in, want, got)
		}
	}
}

func TestInferKey(t *testing.T) {
	withID := &Table{Name: "orders", Fields: []*Field{
		{Name: "id", Kind: KindNumber},
		{Name: "total", Kind: KindNumber},
	}}
	if got := inferKey(withID); len(got) != 1 || got[0] != "id" {
		t.Errorf("expected id, got %v", got)
	}

	withSuffix := &Table{Name: "ratcatalogue", Fields: []*Field{
		{Name: "title", Kind: KindText},
		{Name: "image_no", Kind: KindText},
	}}
	if got := inferKey(withSuffix); len(got) != 1 || got[0] != "image_no" {
		t.Errorf("expected image_no, got %v", got)
	}

	keyless := &Table{Name: "log", Fields: []*Field{
		{Name: "message", Kind: KindText},
	}}
	if got := inferKey(keyless); got != nil {
		t.Errorf("expected no key, got %v", got)
	}
}

func TestKeyIndexes(t *testing.T) {
	table := &Table{
		Name: "t",
		Fields: []*Field{
			{Name: "a"}, {Name: "b"}, {Name: "c"},
		},
		KeyFields: []string{"c", "a"},
	}
	idx := table.KeyIndexes()
	if len(idx) != 2 || idx[0] != 2 || idx[1] != 0 {
		t.Errorf("expected [2 0], got %v", idx)
	}
}

func TestContainerFields(t *testing.T) {
	table := &Table{
		Name: "t",
		Fields: []*Field{
			{Name: "id", Kind: KindNumber},
			{Name: "picture", Kind: KindContainer},
			{Name: "scan", Kind: KindContainer},
		},
	}
	got := table.ContainerFields()
	if len(got) != 2 || got[0].Name != "picture" || got[1].Name != "scan" {
		t.Errorf("unexpected container fields: %v", got)
	}
}
