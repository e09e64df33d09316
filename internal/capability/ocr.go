// ocr.go - OCRProvider implementations: a credential-free local stub (the
// module's default, so the server runs without external dependencies) and a
// Gemini-vision-backed provider adapted from the teacher's
// internal/ai/gemini.go client plumbing (genai.NewClient, GenerativeModel,
// genai.Blob image parts).
package capability

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/visualaoi/inspector/internal/ratelimit"
)

// LocalStubOCRProvider satisfies the OCRProvider contract without any
// external service. It never claims to have read text it didn't - it always
// returns an empty string, which the OCR executor's decision table (spec.md
// §4.2.3) correctly turns into "[FAIL: No text detected]" absent an expected
// string. Real deployments configure OCR_PROVIDER=gemini instead.
type LocalStubOCRProvider struct{}

func NewLocalStubOCRProvider() *LocalStubOCRProvider { return &LocalStubOCRProvider{} }

func (p *LocalStubOCRProvider) RecognizeText(img image.Image) (string, error) {
	return "", nil
}

func (p *LocalStubOCRProvider) Name() string { return "stub" }

// GeminiOCRProvider recognizes text via a Gemini vision model.
type GeminiOCRProvider struct {
	apiKey string
	model  string
}

// NewGeminiOCRProvider constructs a Gemini-backed OCR provider.
func NewGeminiOCRProvider(apiKey, model string) *GeminiOCRProvider {
	return &GeminiOCRProvider{apiKey: apiKey, model: model}
}

func (p *GeminiOCRProvider) Name() string { return "gemini" }

func (p *GeminiOCRProvider) RecognizeText(img image.Image) (string, error) {
	ratelimit.WaitForRateLimit()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("ocr: create gemini client: %w", err)
	}
	defer client.Close()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return "", fmt.Errorf("ocr: encode crop: %w", err)
	}

	gm := client.GenerativeModel(p.model)
	resp, err := callWithRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return gm.GenerateContent(ctx,
			genai.Text("Transcribe the visible text in this image exactly, with no commentary."),
			genai.Blob{MIMEType: "image/jpeg", Data: buf.Bytes()},
		)
	})
	if err != nil {
		return "", fmt.Errorf("ocr: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", nil
}
