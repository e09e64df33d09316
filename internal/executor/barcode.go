package executor

import (
	"image"

	"github.com/visualaoi/inspector/internal/roi"
)

// executeBarcode implements spec.md §4.2.1: decode zero or more symbologies,
// pass iff the resulting list is non-empty. The list is never stringified
// before being attached to the result (the "common source-language bug" the
// spec calls out).
func executeBarcode(_ *roi.Record, crop image.Image, deps Deps, result *Result) error {
	values, err := deps.Barcode.Decode(crop)
	if err != nil {
		return err
	}
	if values == nil {
		values = []string{}
	}
	result.Payload["barcode_values"] = values
	result.Passed = len(values) > 0
	return nil
}
