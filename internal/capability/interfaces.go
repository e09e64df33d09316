// interfaces.go - Capability Adapters (C1): stateless wrappers over the
// barcode, OCR, color, and feature-extraction capabilities the ROI Executors
// (C6) consume. Generalized from the teacher's internal/ai.OCRProvider
// interface + factory pattern (internal/ai/interface.go, internal/ai/factory.go).
package capability

import "image"

// BarcodeDecoder decodes zero or more symbologies from a cropped region.
// Results are always a slice of strings - never a stringified list (spec.md
// §4.2.1's "common source-language bug to avoid").
type BarcodeDecoder interface {
	Decode(img image.Image) ([]string, error)
}

// OCRProvider recognizes the text content of a cropped region.
type OCRProvider interface {
	RecognizeText(img image.Image) (string, error)
	Name() string
}

// FeatureExtractor produces a feature vector for similarity comparison,
// keyed by the ROI's advisory feature_method ("mobilenet", "opencv", ...).
type FeatureExtractor interface {
	ExtractFeatures(img image.Image, method string) ([]float64, error)
	Name() string
}
