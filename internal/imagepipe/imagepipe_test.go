package imagepipe_test

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	"fm-sync/internal/imagepipe"
)

func jpegBlob(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSniffFormats(t *testing.T) {
	cases := []struct {
		data []byte
		want string
	}{
		{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{[]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A}, "png"},
		{[]byte("GIF89a...."), "gif"},
		{[]byte("BM...."), "bmp"},
	}
	for _, c := range cases {
		name, offset, ok := imagepipe.Sniff(c.data)
		if !ok || name != c.want || offset != 0 {
			t.Errorf("Sniff: expected %s at 0, got %s at %d (ok=%v)", c.want, name, offset, ok)
		}
	}
}

func TestSniffSkipsWrapperHeader(t *testing.T) {
	wrapped := append([]byte("SOMEHDR\x00\x01\x02"), 0xFF, 0xD8, 0xFF, 0xE0)
	name, offset, ok := imagepipe.Sniff(wrapped)
	if !ok || name != "jpeg" || offset != 10 {
		t.Errorf("expected jpeg at offset 10, got %s at %d (ok=%v)", name, offset, ok)
	}
}

func TestSniffRejectsGarbage(t *testing.T) {
	if _, _, ok := imagepipe.Sniff([]byte("definitely not an image")); ok {
		t.Error("expected no signature")
	}
}

func TestDecodePreservesDimensions(t *testing.T) {
	blob := jpegBlob(t, 32, 24)
	img, err := imagepipe.Decode(blob)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("expected 32x24, got %dx%d", b.Dx(), b.Dy())
	}
}

// bmpBlob builds a minimal 1x1 24-bit uncompressed BMP.
func bmpBlob() []byte {
	b := make([]byte, 58)
	copy(b, "BM")
	le := binary.LittleEndian
	le.PutUint32(b[2:], 58)  // file size
	le.PutUint32(b[10:], 54) // pixel data offset
	le.PutUint32(b[14:], 40) // info header size
	le.PutUint32(b[18:], 1)  // width
	le.PutUint32(b[22:], 1)  // height
	le.PutUint16(b[26:], 1)  // planes
	le.PutUint16(b[28:], 24) // bits per pixel
	le.PutUint32(b[34:], 4)  // pixel data size
	return b
}

func TestDecodeBMP(t *testing.T) {
	img, err := imagepipe.Decode(bmpBlob())
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("expected 1x1, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestDecodeWrappedBlob(t *testing.T) {
	blob := append([]byte("FMHDR\x00\x00"), jpegBlob(t, 8, 8)...)
	if _, err := imagepipe.Decode(blob); err != nil {
		t.Fatalf("wrapped blob should decode: %v", err)
	}
}

func TestExporterWritesAllFormats(t *testing.T) {
	root := t.TempDir()
	formats := []imagepipe.Format{imagepipe.FormatJPG, imagepipe.FormatPNG, imagepipe.FormatWebP}
	exp, err := imagepipe.NewExporter(root, formats, 90, false, 2)
	if err != nil {
		t.Fatal(err)
	}

	exp.Submit(imagepipe.Job{Table: "ratcatalogue", Key: "IMG005", Field: "picture", Data: jpegBlob(t, 16, 16)})
	stats := exp.Wait()

	if stats.Written != 3 {
		t.Fatalf("expected 3 files written, got %d (failed %d: %v)", stats.Written, stats.Failed, stats.Errs)
	}
	for _, f := range formats {
		path := exp.Path("IMG005", f)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s: %v", path, err)
		}
	}
}

func TestExporterSkipsExisting(t *testing.T) {
	root := t.TempDir()
	blob := jpegBlob(t, 8, 8)

	exp, err := imagepipe.NewExporter(root, []imagepipe.Format{imagepipe.FormatJPG}, 90, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	exp.Submit(imagepipe.Job{Key: "IMG001", Data: blob})
	if stats := exp.Wait(); stats.Written != 1 {
		t.Fatalf("first run should write: %+v", stats)
	}

	exp2, err := imagepipe.NewExporter(root, []imagepipe.Format{imagepipe.FormatJPG}, 90, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	exp2.Submit(imagepipe.Job{Key: "IMG001", Data: blob})
	stats := exp2.Wait()
	if stats.Written != 0 || stats.Skipped != 1 {
		t.Errorf("second run should skip: %+v", stats)
	}
}

func TestExporterCountsBadBlob(t *testing.T) {
	exp, err := imagepipe.NewExporter(t.TempDir(), []imagepipe.Format{imagepipe.FormatJPG}, 90, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	exp.Submit(imagepipe.Job{Table: "t", Key: "BAD", Field: "picture", Data: []byte("not an image")})
	stats := exp.Wait()
	if stats.Failed == 0 || len(stats.Errs) == 0 {
		t.Errorf("bad blob must be counted, got %+v", stats)
	}
	if stats.Written != 0 {
		t.Errorf("nothing should be written for a bad blob")
	}
}

func TestSanitizedPaths(t *testing.T) {
	exp, err := imagepipe.NewExporter(t.TempDir(), []imagepipe.Format{imagepipe.FormatWebP}, 90, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := exp.Path("A/B:C 1", imagepipe.FormatWebP)
	if want := "A_B_C_1.webp"; !bytes.HasSuffix([]byte(got), []byte(want)) {
		t.Errorf("expected path ending %s, got %s", want, got)
	}
}
