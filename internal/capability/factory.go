// factory.go - capability provider selection by configuration, generalized
// from the teacher's internal/ai/factory.go OCR-provider factory.
package capability

import "github.com/visualaoi/inspector/configs"

// NewBarcodeDecoder returns the module's single barcode decoding strategy.
// There is currently only one; the constructor still exists so callers never
// reach into the concrete type directly.
func NewBarcodeDecoder() BarcodeDecoder {
	return NewZXingBarcodeDecoder()
}

// NewOCRProvider selects an OCRProvider by configs.OCR_PROVIDER.
func NewOCRProvider() OCRProvider {
	if configs.OCR_PROVIDER == "gemini" {
		return NewGeminiOCRProvider(configs.GEMINI_API_KEY, configs.GEMINI_MODEL_NAME)
	}
	return NewLocalStubOCRProvider()
}

// NewFeatureExtractor selects a FeatureExtractor by configs.FEATURE_EXTRACTOR.
func NewFeatureExtractor() FeatureExtractor {
	if configs.FEATURE_EXTRACTOR == "gemini" {
		return NewGeminiFeatureExtractor(configs.GEMINI_API_KEY, configs.GEMINI_MODEL_NAME)
	}
	return NewLocalFeatureExtractor()
}
