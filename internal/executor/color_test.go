package executor

import (
	"image"
	"image/color"
	"testing"

	"github.com/visualaoi/inspector/internal/roi"
)

// crop100x30pctRed builds the seed fixture from spec.md §8 scenario 6: a
// 100x100 crop, 30% pure red, 70% black.
func crop100x30pctRed() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	redPixels := 3000 // 30% of 10000
	count := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if count < redPixels {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{A: 255})
			}
			count++
		}
	}
	return img
}

func TestExecuteColorSimplePassThenFailOnHigherThreshold(t *testing.T) {
	crop := crop100x30pctRed()
	cc := &roi.ColorConfig{Simple: &roi.SimpleColorConfig{
		ExpectedColor:      [3]int{255, 0, 0},
		ColorTolerance:     10,
		MinPixelPercentage: 25.0,
	}}
	rec := &roi.Record{Idx: 6, ColorConfig: cc}
	result := &Result{Payload: map[string]any{}}

	if err := executeColor(rec, crop, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pct := result.Payload["match_percentage"].(float64); pct != 30.0 {
		t.Fatalf("expected match_percentage=30.0, got %v", pct)
	}
	if !result.Passed {
		t.Fatalf("expected pass at threshold 25")
	}

	cc.Simple.MinPixelPercentage = 40.0
	result2 := &Result{Payload: map[string]any{}}
	if err := executeColor(rec, crop, result2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2.Passed {
		t.Fatalf("expected failure at threshold 40")
	}
}

func TestExecuteColorRangesAggregationPicksArgmax(t *testing.T) {
	// A crop that is half red, half blue. Two overlapping "red" ranges
	// contribute to the same name's aggregated sum and should out-vote a
	// single "blue" range despite blue covering exactly half the pixels.
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x < 5 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}

	cc := &roi.ColorConfig{Ranges: []roi.ColorRange{
		{Name: "red", Lower: [3]int{200, 0, 0}, Upper: [3]int{255, 50, 50}, ColorSpace: "RGB", Threshold: 10},
		{Name: "red", Lower: [3]int{200, 0, 0}, Upper: [3]int{255, 50, 50}, ColorSpace: "RGB", Threshold: 10},
		{Name: "blue", Lower: [3]int{0, 0, 200}, Upper: [3]int{50, 50, 255}, ColorSpace: "RGB", Threshold: 10},
	}}
	rec := &roi.Record{Idx: 7, ColorConfig: cc}
	result := &Result{Payload: map[string]any{}}

	if err := executeColor(rec, img, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Payload["detected_color"] != "red" {
		t.Fatalf("expected red to win the aggregated sum, got %v", result.Payload["detected_color"])
	}
	if !result.Passed {
		t.Fatalf("expected pass: raw sum 100 capped to 100 >= threshold 10")
	}
	if raw := result.Payload["match_percentage_raw"].(float64); raw != 100.0 {
		t.Fatalf("expected raw sum 100 (50+50), got %v", raw)
	}
}

func TestExecuteColorNoConfigIsError(t *testing.T) {
	rec := &roi.Record{Idx: 8, ColorConfig: &roi.ColorConfig{}}
	result := &Result{Payload: map[string]any{}}
	if err := executeColor(rec, crop100x30pctRed(), result); err == nil {
		t.Fatalf("expected error for empty color_config")
	}
}
