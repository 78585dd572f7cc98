// Package imagepipe turns container blobs into image files on disk,
// transcoded to the configured output formats.
package imagepipe

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif" // decode-only

	"github.com/HugoSmits86/nativewebp"
	_ "golang.org/x/image/bmp" // decode-only
)

// DecodeError marks one blob that could not be decoded or written. It is
// recorded and counted, never escalated past the blob that caused it.
type DecodeError struct {
	Table string
	Key   string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image decode failed for %s key %s field %s: %v", e.Table, e.Key, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Format string

const (
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

func ParseFormat(s string) (Format, error) {
	switch s {
	case "jpg", "jpeg":
		return FormatJPG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unknown image format %q", s)
}

var signatures = []struct {
	magic []byte
	name  string
}{
	{[]byte{0xFF, 0xD8, 0xFF}, "jpeg"},
	{[]byte{0x89, 'P', 'N', 'G'}, "png"},
	{[]byte("GIF87a"), "gif"},
	{[]byte("GIF89a"), "gif"},
	{[]byte{'B', 'M'}, "bmp"},
}

// sniffWindow bounds how deep into a blob a signature may sit. Container
// reads sometimes carry a short proprietary header before the image data.
const sniffWindow = 512

// Sniff locates a known image signature in the blob and returns the
// detected format name and the offset the image data starts at.
func Sniff(data []byte) (string, int, bool) {
	limit := len(data)
	if limit > sniffWindow {
		limit = sniffWindow
	}
	for _, sig := range signatures {
		if idx := bytes.Index(data[:limit], sig.magic); idx >= 0 {
			return sig.name, idx, true
		}
	}
	return "", 0, false
}

// Decode sniffs past any wrapper header and decodes the image.
func Decode(data []byte) (image.Image, error) {
	_, offset, ok := Sniff(data)
	if !ok {
		return nil, fmt.Errorf("no image signature in %d bytes", len(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data[offset:]))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// Encode writes img in the requested format. quality only applies to JPEG.
func Encode(buf *bytes.Buffer, img image.Image, f Format, quality int) error {
	switch f {
	case FormatJPG:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		return png.Encode(buf, img)
	case FormatWebP:
		return nativewebp.Encode(buf, img, nil)
	}
	return fmt.Errorf("unknown image format %q", f)
}
