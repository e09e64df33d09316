// resolver.go - Image Source Resolver (C4): turns a request fragment into a
// decoded image, choosing among absolute path / session-relative filename /
// inline base64, in strict priority order (spec.md §4.1).
//
// golang.org/x/image/bmp and /webp are registered via blank import so the
// stdlib image.Decode dispatch recognizes camera-capture formats beyond
// jpeg/png, mirroring the format breadth the nbt4-rentalcore barcode scanner
// pulls in alongside its own x/image dependency.
package imagesource

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/visualaoi/inspector/internal/common"
)

// Variant records which of the three source fields actually supplied the image.
type Variant string

const (
	VariantPath     Variant = "image_path"
	VariantFilename Variant = "image_filename"
	VariantInline   Variant = "image"
)

// Request is the per-group source fragment: exactly one of these fields
// should be populated; if more than one is, priority order decides.
type Request struct {
	ImagePath     string
	ImageFilename string
	ImageBase64   string
}

// Resolved is a decoded frame plus observability metadata.
type Resolved struct {
	Image   image.Image
	Variant Variant
	// Degraded is true for the inline-base64 variant, which the spec calls
	// out as reportable-as-degraded for observability.
	Degraded bool
}

// Resolve implements the three-field priority ladder of spec.md §4.1.
func Resolve(req Request, sessionInputDir string) (*Resolved, error) {
	switch {
	case req.ImagePath != "":
		img, err := decodeFile(req.ImagePath)
		if err != nil {
			return nil, err
		}
		return &Resolved{Image: img, Variant: VariantPath}, nil

	case req.ImageFilename != "":
		path := filepath.Join(sessionInputDir, req.ImageFilename)
		img, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		return &Resolved{Image: img, Variant: VariantFilename}, nil

	case req.ImageBase64 != "":
		img, err := decodeInline(req.ImageBase64)
		if err != nil {
			return nil, err
		}
		return &Resolved{Image: img, Variant: VariantInline, Degraded: true}, nil

	default:
		return nil, fmt.Errorf("%w: no image source supplied", common.ErrSourceNotFound)
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceNotFound, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnreadable, path, err)
	}
	return img, nil
}

func decodeInline(payload string) (image.Image, error) {
	data := payload
	if idx := strings.Index(data, ";base64,"); idx >= 0 {
		data = data[idx+len(";base64,"):]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", common.ErrSourceMalformed, err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid image data: %v", common.ErrSourceMalformed, err)
	}
	return img, nil
}
