// barcode.go - BarcodeDecoder backed by github.com/makiuchi-d/gozxing,
// grounded on the barcode+gin pairing in the pack's nbt4-rentalcore
// reference (other_examples/.../nbt4-rentalcore__web-scanner-decoder-types.go).
package capability

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"
)

// ZXingBarcodeDecoder decodes every barcode gozxing's multi-format reader can
// find in a single crop, across all symbologies it supports (Code128,
// Code39, EAN13, EAN8, UPCA, UPCE, ITF, QR).
type ZXingBarcodeDecoder struct{}

// NewZXingBarcodeDecoder constructs the default decoder.
func NewZXingBarcodeDecoder() *ZXingBarcodeDecoder {
	return &ZXingBarcodeDecoder{}
}

// Decode returns the ordered list of distinct decoded strings, or an empty
// (never nil-vs-error-confused) slice if nothing was found.
func (d *ZXingBarcodeDecoder) Decode(img image.Image) ([]string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("barcode: binarize crop: %w", err)
	}

	reader := multi.NewGenericMultipleBarcodeReader(gozxing.NewMultiFormatReader())
	results, err := reader.DecodeMultiple(bmp, nil)
	if err != nil {
		// gozxing.NotFoundException means "no barcode present", not a failure.
		return []string{}, nil
	}

	seen := make(map[string]bool, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		text := r.GetText()
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return out, nil
}
