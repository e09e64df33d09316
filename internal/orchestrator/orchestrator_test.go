package orchestrator

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/visualaoi/inspector/internal/barcodelink"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/imagesource"
	"github.com/visualaoi/inspector/internal/session"
)

type fixedFeatureExtractor struct{ vec []float64 }

func (f fixedFeatureExtractor) Name() string { return "fixed" }
func (f fixedFeatureExtractor) ExtractFeatures(img image.Image, method string) ([]float64, error) {
	return f.vec, nil
}

type neverFoundBarcode struct{}

func (neverFoundBarcode) Decode(img image.Image) ([]string, error) { return []string{}, nil }

type emptyOCR struct{}

func (emptyOCR) RecognizeText(img image.Image) (string, error) { return "", nil }
func (emptyOCR) Name() string                                  { return "empty" }

func redSquare() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return img
}

// TestHappyPathCompare implements spec.md §8 seed fixture 1: a Compare ROI
// whose golden directory contains only best_golden.jpg of a solid red
// square, captured against the identical square, with a unit feature vector
// - expect ai_similarity≈1.0, passed=true, golden directory unchanged.
func TestHappyPathCompare(t *testing.T) {
	sharedRoot := t.TempDir()
	productsRoot := t.TempDir()

	sessions := session.NewManager(sharedRoot)
	sess, err := sessions.Create("widget", "test-client")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	framePath := filepath.Join(sess.InputDir, "frame.jpg")
	f, _ := os.Create(framePath)
	jpeg.Encode(f, redSquare(), nil)
	f.Close()

	store := golden.NewStore(productsRoot)
	store.EnsureDir("widget", 3)
	bestPath := filepath.Join(store.RoiDir("widget", 3), "best_golden.jpg")
	bf, _ := os.Create(bestPath)
	jpeg.Encode(bf, redSquare(), nil)
	bf.Close()

	threshold := 0.9
	roiConfig, _ := json.Marshal([]map[string]any{
		{
			"idx": 3, "type": 2, "coords": []int{0, 0, 100, 100},
			"focus": 305, "exposure": 1200, "ai_threshold": threshold,
			"feature_method": "opencv", "rotation": 0, "device_location": 1,
		},
	})

	orch := &Orchestrator{
		Sessions:    sessions,
		Golden:      store,
		Barcode:     neverFoundBarcode{},
		OCR:         emptyOCR{},
		Feature:     fixedFeatureExtractor{vec: []float64{1, 0}},
		Linker:      barcodelink.New("", 0, false, 5, 0),
		SharedRoot:  sharedRoot,
		ClientMount: "/mnt/visual-aoi-shared",
		WorkerMax:   2,
	}

	req := Request{
		SessionID: sess.ID,
		ProductID: "widget",
		ROIConfig: roiConfig,
		Groups: []Group{
			{Focus: 305, Exposure: 1200, Source: imagesource.Request{ImagePath: framePath}, Indices: []int{3}},
		},
	}

	resp, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OverallResult.Passed {
		t.Fatalf("expected overall pass, got %+v", resp.OverallResult)
	}
	if len(resp.ROIResults) != 1 || !resp.ROIResults[0].Passed {
		t.Fatalf("expected single passing roi result, got %+v", resp.ROIResults)
	}
	if sim, _ := resp.ROIResults[0].Payload["ai_similarity"].(float64); sim < 0.999 {
		t.Fatalf("expected ai_similarity ~= 1.0, got %v", sim)
	}

	entries, _ := os.ReadDir(store.RoiDir("widget", 3))
	if len(entries) != 1 {
		t.Fatalf("expected golden directory unchanged (1 entry), got %d", len(entries))
	}
}

// TestRunSortsResultsAcrossGroupsByIdx covers P4 for a multi-group request:
// runner.Run only sorts within one group, so a later-listed group with
// higher idx values must not leave ROIResults out of ascending order just
// because req.Groups (or, in the HTTP layer, a map iteration) processed it
// first.
func TestRunSortsResultsAcrossGroupsByIdx(t *testing.T) {
	sharedRoot := t.TempDir()
	productsRoot := t.TempDir()

	sessions := session.NewManager(sharedRoot)
	sess, err := sessions.Create("widget", "test-client")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	framePath := filepath.Join(sess.InputDir, "frame.jpg")
	f, _ := os.Create(framePath)
	jpeg.Encode(f, redSquare(), nil)
	f.Close()

	roiConfig, _ := json.Marshal([]map[string]any{
		{"idx": 9, "type": 1, "coords": []int{0, 0, 100, 100}, "focus": 0, "exposure": 0, "device_location": 1},
		{"idx": 2, "type": 1, "coords": []int{0, 0, 100, 100}, "focus": 0, "exposure": 0, "device_location": 1},
		{"idx": 5, "type": 1, "coords": []int{0, 0, 100, 100}, "focus": 0, "exposure": 0, "device_location": 2},
		{"idx": 1, "type": 1, "coords": []int{0, 0, 100, 100}, "focus": 0, "exposure": 0, "device_location": 2},
	})

	orch := &Orchestrator{
		Sessions:    sessions,
		Golden:      golden.NewStore(productsRoot),
		Barcode:     neverFoundBarcode{},
		OCR:         emptyOCR{},
		Feature:     fixedFeatureExtractor{vec: []float64{1, 0}},
		Linker:      barcodelink.New("", 0, false, 5, 0),
		SharedRoot:  sharedRoot,
		ClientMount: "/mnt/visual-aoi-shared",
		WorkerMax:   2,
	}

	// group order deliberately lists the high-idx group first, mirroring
	// how a map-iteration-derived group order (POST /process_grouped_inspection)
	// can present groups in any order.
	req := Request{
		SessionID: sess.ID,
		ProductID: "widget",
		ROIConfig: roiConfig,
		Groups: []Group{
			{Focus: 0, Exposure: 0, Source: imagesource.Request{ImagePath: framePath}, Indices: []int{9, 2}},
			{Focus: 0, Exposure: 0, Source: imagesource.Request{ImagePath: framePath}, Indices: []int{5, 1}},
		},
	}

	resp, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{1, 2, 5, 9}
	if len(resp.ROIResults) != len(want) {
		t.Fatalf("expected %d roi results, got %d", len(want), len(resp.ROIResults))
	}
	for i, r := range resp.ROIResults {
		if r.ROIID != want[i] {
			t.Fatalf("position %d: expected roi id %d, got %d (full: %+v)", i, want[i], r.ROIID, resp.ROIResults)
		}
	}
}
