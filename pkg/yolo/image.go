package yolo

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
)

// ImageExtensions is the allowlist of image file extensions, lower case
var ImageExtensions = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"bmp":  "image/bmp",
}

// IsImage reports whether the entry has an allowlisted image extension
func IsImage(e Entry) bool {
	_, ok := ImageExtensions[e.Ext()]
	return ok
}

// ContentType returns the MIME type for an allowlisted image extension
func ContentType(ext string) string {
	if ct, ok := ImageExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// HeaderPeekSize is how much of an image is buffered to read its dimensions
const HeaderPeekSize = 64 * 1024

// Dimensions decodes only the image header
func Dimensions(r io.Reader) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decoding image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// PeekDimensions buffers the start of r, decodes dimensions from it and
// returns a reader replaying the full stream. ok is false when the header
// did not fit in the peeked bytes or is not a supported format.
func PeekDimensions(r io.Reader) (width, height int, ok bool, replay io.Reader, err error) {
	buf := make([]byte, HeaderPeekSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, 0, false, nil, err
	}
	buf = buf[:n]
	replay = io.MultiReader(bytes.NewReader(buf), r)

	w, h, decodeErr := Dimensions(bytes.NewReader(buf))
	if decodeErr != nil {
		return 0, 0, false, replay, nil
	}
	return w, h, true, replay, nil
}
