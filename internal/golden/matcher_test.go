package golden

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/visualaoi/inspector/internal/common"
)

// fakeExtractor maps an image's top-left pixel color to a canned feature
// vector, so tests can control similarity scores precisely without a real
// capability.FeatureExtractor.
type fakeExtractor struct {
	vectors map[color.RGBA][]float64
	calls   int
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) ExtractFeatures(img image.Image, method string) ([]float64, error) {
	f.calls++
	b := img.Bounds()
	r, g, bl, a := img.At(b.Min.X, b.Min.Y).RGBA()
	key := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)}
	if v, ok := f.vectors[key]; ok {
		return v, nil
	}
	return []float64{0}, nil
}

func solidImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, solidImage(c), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

var (
	colorCrop = color.RGBA{R: 10, G: 10, B: 10, A: 255}
	colorBest = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	colorAlt  = color.RGBA{R: 30, G: 30, B: 30, A: 255}
)

func TestMatchFailPreservesLibrary(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if err := store.EnsureDir("prodA", 3); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	dir := store.RoiDir("prodA", 3)
	bestPath := filepath.Join(dir, "best_golden.jpg")
	writeJPEG(t, bestPath, colorBest)

	before, _ := os.ReadFile(bestPath)

	extractor := &fakeExtractor{vectors: map[color.RGBA][]float64{
		colorCrop: {1, 0},
		colorBest: {0, 1}, // orthogonal -> similarity 0
	}}

	result, err := Match(store, extractor, "prodA", 3, solidImage(colorCrop), "opencv", 0.99, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Fatalf("expected failure, got pass: %+v", result)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected golden dir untouched (1 entry), got %d", len(entries))
	}
	after, _ := os.ReadFile(bestPath)
	if string(before) != string(after) {
		t.Fatalf("best_golden.jpg bytes changed on a failed match")
	}

	// P1: re-running leaves the directory unchanged again.
	result2, err := Match(store, extractor, "prodA", 3, solidImage(colorCrop), "opencv", 0.99, time.Unix(1700000001, 0))
	if err != nil || result2.Passed {
		t.Fatalf("expected idempotent failure, got %+v, err=%v", result2, err)
	}
	entries2, _ := os.ReadDir(dir)
	if len(entries2) != 1 {
		t.Fatalf("expected dir still untouched, got %d entries", len(entries2))
	}
}

func TestMatchPromotesOnAlternateSuccess(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	store.EnsureDir("prodB", 3)
	dir := store.RoiDir("prodB", 3)

	bestPath := filepath.Join(dir, "best_golden.jpg")
	altPath := filepath.Join(dir, "1700000000_golden_sample.jpg")
	writeJPEG(t, bestPath, colorBest)
	writeJPEG(t, altPath, colorAlt)
	altBytesBefore, _ := os.ReadFile(altPath)

	extractor := &fakeExtractor{vectors: map[color.RGBA][]float64{
		colorCrop: {1, 0},
		colorBest: {0.6, 0.8}, // cos sim 0.6, below threshold
		colorAlt:  {0.97, 0.2428},
	}}

	result, err := Match(store, extractor, "prodB", 3, solidImage(colorCrop), "opencv", 0.93, time.Unix(1700000500, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed || !result.Promoted {
		t.Fatalf("expected promoted pass, got %+v", result)
	}

	newBest, err := os.ReadFile(bestPath)
	if err != nil {
		t.Fatalf("read new best: %v", err)
	}
	if string(newBest) != string(altBytesBefore) {
		t.Fatalf("best_golden.jpg does not carry the promoted candidate's bytes")
	}

	entries, _ := os.ReadDir(dir)
	var backups int
	for _, e := range entries {
		if isBackupName(e.Name()) {
			backups++
		}
	}
	if backups != 1 {
		t.Fatalf("expected exactly one backup file, got %d", backups)
	}
	if len(entries) != 2 {
		t.Fatalf("expected best_golden.jpg + exactly one backup, got %d entries", len(entries))
	}
}

func TestMatchPromotionFailurePreservesResult(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	store.EnsureDir("prodD", 3)
	dir := store.RoiDir("prodD", 3)

	bestPath := filepath.Join(dir, "best_golden.jpg")
	altPath := filepath.Join(dir, "1700000000_golden_sample.jpg")
	writeJPEG(t, bestPath, colorBest)
	writeJPEG(t, altPath, colorAlt)

	extractor := &fakeExtractor{vectors: map[color.RGBA][]float64{
		colorCrop: {1, 0},
		colorBest: {0.6, 0.8}, // below threshold
		colorAlt:  {0.97, 0.2428},
	}}

	// store.Promote's first step renames the winner onto a ".promoting_<now
	// UnixNano>" path; pre-occupying that exact path with a directory makes
	// the rename fail with EISDIR deterministically (unlike a permission
	// trick, this doesn't depend on the test process running unprivileged).
	now := time.Unix(1700000500, 0)
	tempPath := filepath.Join(dir, fmt.Sprintf(".promoting_%d", now.UnixNano()))
	if err := os.Mkdir(tempPath, 0o755); err != nil {
		t.Fatalf("seed blocking dir: %v", err)
	}

	result, err := Match(store, extractor, "prodD", 3, solidImage(colorCrop), "opencv", 0.93, now)
	if err == nil {
		t.Fatal("expected promotion to fail with the temp rename target occupied")
	}
	if !errors.Is(err, common.ErrPromotionFailed) {
		t.Fatalf("expected ErrPromotionFailed, got %v", err)
	}
	if !result.Passed {
		t.Fatalf("expected a match to still be reported despite promotion failure, got %+v", result)
	}
	if result.AISimilarity <= 0.9 {
		t.Fatalf("expected the real computed similarity, got %v", result.AISimilarity)
	}
}

func TestMatchShortCircuitsOnFirstPass(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	store.EnsureDir("prodC", 3)
	dir := store.RoiDir("prodC", 3)

	colorUntouched := color.RGBA{R: 40, G: 40, B: 40, A: 255}

	bestPath := filepath.Join(dir, "best_golden.jpg")
	writeJPEG(t, bestPath, colorBest)
	time.Sleep(10 * time.Millisecond)
	writeJPEG(t, filepath.Join(dir, "1700000001_golden_sample.jpg"), colorUntouched)

	extractor := &fakeExtractor{vectors: map[color.RGBA][]float64{
		colorCrop:      {1, 0},
		colorBest:      {1, 0}, // identical -> similarity 1.0, passes immediately
		colorUntouched: {0, 1}, // would fail if examined, but must never be reached
	}}

	result, err := Match(store, extractor, "prodC", 3, solidImage(colorCrop), "opencv", 0.9, time.Unix(1700001000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed || result.Promoted {
		t.Fatalf("expected a pass against best with no promotion, got %+v", result)
	}
	// best_golden.jpg is candidates[0] and passes immediately; the
	// remaining alternate's similarity must never be computed (P3).
	if extractor.calls != 2 { // 1 for the crop, 1 for best_golden.jpg
		t.Fatalf("expected exactly 2 extractor calls (crop + best), got %d", extractor.calls)
	}
}
