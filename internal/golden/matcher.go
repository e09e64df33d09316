// matcher.go - Golden Matcher & Promotion Engine (C7), spec.md §4.3. Grounded
// on the teacher's disintegration/imaging usage in internal/processor for
// resizing, and on internal/storage/cache.go's double-checked locking idiom
// for the serialization discipline carried by the Store.
package golden

import (
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/visualaoi/inspector/internal/capability"
)

// epsilon absorbs floating-point noise at the threshold boundary, per
// spec.md §4.3 step 2 ("s_i + ε ≥ τ").
const epsilon = 1e-8

// Result is the outcome of matching one captured crop against a product's
// ROI golden library.
type Result struct {
	Passed        bool
	AISimilarity  float64
	GoldenPath    string
	Promoted      bool
	CandidatesTried int
}

// Match implements the ordered, short-circuiting candidate search and
// triggers promotion on the first acceptable candidate (I1, I4).
func Match(store *Store, extractor capability.FeatureExtractor, product string, roiIdx int, crop image.Image, featureMethod string, threshold float64, now time.Time) (Result, error) {
	if err := store.EnsureDir(product, roiIdx); err != nil {
		return Result{}, fmt.Errorf("golden: ensure dir: %w", err)
	}

	candidates, err := store.ListCandidates(product, roiIdx)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{Passed: false, AISimilarity: 0}, nil
	}

	cropFeatures, err := extractor.ExtractFeatures(crop, featureMethod)
	if err != nil {
		return Result{}, fmt.Errorf("golden: extract crop features: %w", err)
	}
	bounds := crop.Bounds()

	var maxSim float64
	bestSeenPath := candidates[0].Path // best_golden.jpg is always candidates[0] when present

	for i, cand := range candidates {
		goldenImg, err := imaging.Open(cand.Path)
		if err != nil {
			// an unreadable candidate is skipped, not fatal - other
			// candidates (including the real best) may still decide this
			// inspection.
			continue
		}
		resized := imaging.Resize(goldenImg, bounds.Dx(), bounds.Dy(), imaging.Lanczos)

		goldenFeatures, err := extractor.ExtractFeatures(resized, featureMethod)
		if err != nil {
			continue
		}

		sim := CosineSimilarity(cropFeatures, goldenFeatures)
		if sim > maxSim {
			maxSim = sim
		}

		if sim+epsilon >= threshold {
			result := Result{
				Passed:          true,
				AISimilarity:    sim,
				GoldenPath:      cand.Path,
				CandidatesTried: i + 1,
			}
			if !cand.IsBest {
				// store.Promote already wraps common.ErrPromotionFailed;
				// return the computed result alongside it so a rename
				// failure doesn't discard a match that was genuinely found.
				if err := store.Promote(product, roiIdx, cand.Path, now); err != nil {
					return result, err
				}
				result.Promoted = true
				result.GoldenPath = store.RoiDir(product, roiIdx) + "/" + bestFileName
			}
			return result, nil
		}
	}

	return Result{
		Passed:          false,
		AISimilarity:    maxSim,
		GoldenPath:      bestSeenPath,
		CandidatesTried: len(candidates),
	}, nil
}
