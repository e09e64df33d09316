package executor

import (
	"fmt"
	"image"
	"strings"

	"github.com/visualaoi/inspector/internal/roi"
)

// executeOCR implements the four-row decision table of spec.md §4.2.3,
// case-insensitive substring semantics on trimmed text.
func executeOCR(rec *roi.Record, crop image.Image, deps Deps, result *Result) error {
	text, err := deps.OCR.RecognizeText(crop)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)

	expected := ""
	if rec.ExpectedText != nil {
		expected = strings.TrimSpace(*rec.ExpectedText)
	}

	var tag string
	switch {
	case expected != "" && strings.Contains(strings.ToLower(text), strings.ToLower(expected)):
		tag = fmt.Sprintf("[PASS: Contains '%s']", expected)
		result.Passed = true
	case expected != "":
		tag = fmt.Sprintf("[FAIL: Expected '%s', detected '%s']", expected, text)
		result.Passed = false
	case text != "":
		tag = "[PASS: Text detected]"
		result.Passed = true
	default:
		tag = "[FAIL: No text detected]"
		result.Passed = false
	}

	result.Payload["ocr_text"] = text + tag
	return nil
}
