// feature.go - FeatureExtractor implementations backing the Golden Matcher's
// (C7) similarity search. A local stdlib implementation is the default so
// golden comparison never depends on an external service; a Gemini-backed
// variant is available for deployments that have a vision key configured,
// grounded on the same client plumbing as GeminiOCRProvider.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/visualaoi/inspector/internal/ratelimit"
)

// localGridSize is the side length of the downsampled luminance grid used by
// the local feature extractor. 16x16 gives a 256-dimension vector, enough to
// distinguish real part/label differences without requiring a model.
const localGridSize = 16

// LocalFeatureExtractor computes a perceptual, average-luminance feature
// vector directly from pixel data. It ignores the advisory feature_method
// hint (method is a downstream model name like "mobilenet" or "opencv"; the
// local extractor has no models to choose between); Name() always reports
// "local", whatever method was passed.
type LocalFeatureExtractor struct{}

func NewLocalFeatureExtractor() *LocalFeatureExtractor { return &LocalFeatureExtractor{} }

func (e *LocalFeatureExtractor) Name() string { return "local" }

func (e *LocalFeatureExtractor) ExtractFeatures(img image.Image, method string) ([]float64, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("feature: empty crop")
	}

	vec := make([]float64, 0, localGridSize*localGridSize)
	cellW := float64(w) / float64(localGridSize)
	cellH := float64(h) / float64(localGridSize)

	for gy := 0; gy < localGridSize; gy++ {
		for gx := 0; gx < localGridSize; gx++ {
			x0 := bounds.Min.X + int(float64(gx)*cellW)
			y0 := bounds.Min.Y + int(float64(gy)*cellH)
			x1 := bounds.Min.X + int(float64(gx+1)*cellW)
			y1 := bounds.Min.Y + int(float64(gy+1)*cellH)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			vec = append(vec, averageLuminance(img, x0, y0, x1, y1))
		}
	}
	return vec, nil
}

func averageLuminance(img image.Image, x0, y0, x1, y1 int) float64 {
	var sum float64
	var count int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma weights, applied to 16-bit channel values.
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			sum += lum
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) / 65535.0
}

// geminiFeatureResponse is the JSON schema the Gemini extractor asks for.
type geminiFeatureResponse struct {
	Features []float64 `json:"features"`
}

// GeminiFeatureExtractor asks a Gemini vision model to emit a numeric
// embedding-like description of the crop. It is a best-effort bridge for
// deployments without a dedicated embedding model; the local extractor
// remains the recommended default for golden matching because it is
// deterministic and has no network dependency.
type GeminiFeatureExtractor struct {
	apiKey string
	model  string
}

func NewGeminiFeatureExtractor(apiKey, model string) *GeminiFeatureExtractor {
	return &GeminiFeatureExtractor{apiKey: apiKey, model: model}
}

func (e *GeminiFeatureExtractor) Name() string { return "gemini" }

func (e *GeminiFeatureExtractor) ExtractFeatures(img image.Image, method string) ([]float64, error) {
	ratelimit.WaitForRateLimit()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return nil, fmt.Errorf("feature: create gemini client: %w", err)
	}
	defer client.Close()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("feature: encode crop: %w", err)
	}

	gm := client.GenerativeModel(e.model)
	gm.ResponseMIMEType = "application/json"
	gm.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"features": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeNumber},
			},
		},
		Required: []string{"features"},
	}

	resp, err := callWithRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return gm.GenerateContent(ctx,
			genai.Text(fmt.Sprintf("Emit a %d-value numeric feature vector summarizing this image's visual content for similarity comparison (method hint: %s).", localGridSize*localGridSize, method)),
			genai.Blob{MIMEType: "image/jpeg", Data: buf.Bytes()},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("feature: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("feature: empty response")
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		text, ok := part.(genai.Text)
		if !ok {
			continue
		}
		var parsed geminiFeatureResponse
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, fmt.Errorf("feature: parse response: %w", err)
		}
		return parsed.Features, nil
	}
	return nil, fmt.Errorf("feature: no text part in response")
}
