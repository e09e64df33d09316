// executor.go - ROI Executors (C6): per-type processors sharing the common
// crop+rotate+save contract of spec.md §4.2. Grounded on
// internal/processor/imageprocessor.go's crop/rotate pipeline, generalized
// from the teacher's fixed enhancement passes to a thin rotate-only step
// (rotation here is a data-correctness requirement from the ROI record, not
// an OCR-accuracy enhancement).
package executor

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/visualaoi/inspector/internal/capability"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/roi"
)

// Deps bundles the capability adapters and golden store an executor needs.
// Passed by value into each Execute call so executors stay stateless.
type Deps struct {
	Barcode   capability.BarcodeDecoder
	OCR       capability.OCRProvider
	Feature   capability.FeatureExtractor
	Golden    *golden.Store
	ProductID string
}

// Result is one ROI's outcome, independent of type, plus a type-specific
// Payload map the Orchestrator serializes verbatim into roi_results.
type Result struct {
	Idx            int
	DeviceLocation int
	TypeName       string
	Passed         bool
	Coords         roi.Rect
	CropPath       string // server-local path to output/roi_<idx>.jpg
	Payload        map[string]any
	Err            error
}

// Execute crops+rotates the frame per the ROI record, saves the crop, then
// dispatches to the type-specific logic. A typed error from the type-specific
// step is captured on Result.Err, never propagated - spec.md §7's
// "ROITaskFailed" propagation policy (a failed ROI never aborts the
// inspection).
func Execute(rec *roi.Record, frame image.Image, deps Deps, sessionOutputDir string) Result {
	result := Result{
		Idx:            rec.Idx,
		DeviceLocation: rec.DeviceLocation,
		TypeName:       rec.Type.String(),
		Coords:         rec.Coords,
		Payload:        map[string]any{},
	}

	crop := cropAndRotate(frame, rec.Coords, rec.Rotation)

	cropPath := filepath.Join(sessionOutputDir, fmt.Sprintf("roi_%d.jpg", rec.Idx))
	if err := saveJPEG(crop, cropPath); err != nil {
		result.Err = fmt.Errorf("executor: save crop: %w", err)
		return result
	}
	result.CropPath = cropPath

	var err error
	switch rec.Type {
	case roi.Barcode:
		err = executeBarcode(rec, crop, deps, &result)
	case roi.Compare:
		err = executeCompare(rec, crop, deps, sessionOutputDir, &result)
	case roi.OCR:
		err = executeOCR(rec, crop, deps, &result)
	case roi.Color:
		err = executeColor(rec, crop, &result)
	default:
		err = fmt.Errorf("executor: unknown roi type %d", rec.Type)
	}

	if err != nil {
		result.Err = err
		result.Passed = false
	}
	return result
}

// cropAndRotate implements the "crop by roi.coords, then apply roi.rotation"
// contract every executor shares (spec.md §4.2).
func cropAndRotate(frame image.Image, coords roi.Rect, rotation int) image.Image {
	rect := image.Rect(coords.X1, coords.Y1, coords.X2, coords.Y2)
	cropped := imaging.Crop(frame, rect)
	if rotation == 0 {
		return cropped
	}
	return imaging.Rotate(cropped, float64(rotation), image.Transparent)
}

func saveJPEG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
}

// saveGoldenCopy copies the winning golden file alongside the ROI crop, as
// output/golden_<idx>.jpg, per spec.md §4.2.2.
func saveGoldenCopy(srcPath, dstPath string) (image.Image, error) {
	img, err := imaging.Open(srcPath)
	if err != nil {
		return nil, err
	}
	if err := saveJPEG(img, dstPath); err != nil {
		return nil, err
	}
	return img, nil
}
