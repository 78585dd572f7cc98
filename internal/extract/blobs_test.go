package extract_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"fm-sync/internal/dialect"
	"fm-sync/internal/extract"
	"fm-sync/internal/schema"
)

func containerTable() *schema.Table {
	return &schema.Table{
		Name: "ratcatalogue",
		Fields: []*schema.Field{
			{Name: "id", Kind: schema.KindNumber},
			{Name: "picture", Kind: schema.KindContainer},
		},
		KeyFields: []string{"id"},
	}
}

func TestBlobStreamSkipsEmptyContainers(t *testing.T) {
	src := &fakeSource{
		cols: []string{"id", "picture"},
		rows: [][]driver.Value{
			{int64(1), []byte("blob-1")},
			{int64(2), []byte(nil)},
			{int64(3), []byte("blob-3")},
		},
	}
	db := newFakeDB(src)
	defer db.Close()

	s, err := extract.NewBlobStream(db, &dialect.FileMakerSource{}, containerTable(), "picture", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Key[0] != "1" || out[1].Key[0] != "3" {
		t.Fatalf("expected blobs for keys 1 and 3, got %v", out)
	}
	if out, err = s.Next(context.Background()); out != nil || err != nil {
		t.Fatalf("expected exhaustion, got %v, %v", out, err)
	}
}

func TestBlobStreamRetryRedeliversFailedChunk(t *testing.T) {
	src := &fakeSource{
		cols: []string{"id", "picture"},
		rows: [][]driver.Value{
			{int64(1), []byte("blob-1")},
			{int64(2), []byte("blob-2")},
			{int64(3), []byte("blob-3")},
			{int64(4), []byte("blob-4")},
		},
	}
	src.failAfter = 2
	db := newFakeDB(src)
	defer db.Close()

	s, err := extract.NewBlobStream(db, &dialect.FileMakerSource{}, containerTable(), "picture", 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	out, err := s.Next(context.Background())
	var re *extract.ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected a read error, got %v", err)
	}
	if out != nil {
		t.Fatalf("a failed chunk must not yield blobs, got %v", out)
	}

	out, err = s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 || out[0].Key[0] != "1" || out[3].Key[0] != "4" {
		t.Fatalf("retry lost rows: expected blobs for keys 1..4, got %v", out)
	}
}
