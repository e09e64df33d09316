package executor

import (
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"time"

	"github.com/visualaoi/inspector/internal/common"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/roi"
	"github.com/visualaoi/inspector/internal/storage"
)

// executeCompare implements spec.md §4.2.2 by delegating to the Golden
// Matcher (C7). PromotionFailed never turns a legitimate match into a
// failure (spec.md §7's propagation policy) - it is logged and surfaced in
// the payload, not in Passed.
func executeCompare(rec *roi.Record, crop image.Image, deps Deps, sessionOutputDir string, result *Result) error {
	if rec.AIThreshold == nil {
		return fmt.Errorf("executor: compare roi %d missing ai_threshold", rec.Idx)
	}

	match, err := golden.Match(deps.Golden, deps.Feature, deps.ProductID, rec.Idx, crop, rec.FeatureMethod, *rec.AIThreshold, time.Now())
	if err != nil {
		if errors.Is(err, common.ErrPromotionFailed) {
			// a PromotionFailed error still reflects a matched capture; it is
			// logged as a warning, but Passed must not flip to false solely
			// because the rename failed (§7).
			log.Printf("executor: compare roi %d: warning: %v", rec.Idx, err)
			result.Payload["promotion_error"] = err.Error()
			result.Passed = true
			result.Payload["ai_similarity"] = match.AISimilarity
			result.Payload["threshold"] = *rec.AIThreshold
			result.Payload["match_result"] = "Match"
			return nil
		}
		// any other error (EnsureDir, ListCandidates, crop feature
		// extraction) means no match was ever detected - ROITaskFailed,
		// not a promotion-only hiccup on an otherwise good result.
		return err
	}

	result.Passed = match.Passed
	result.Payload["ai_similarity"] = match.AISimilarity
	result.Payload["threshold"] = *rec.AIThreshold
	if match.Passed {
		result.Payload["match_result"] = "Match"
	} else {
		result.Payload["match_result"] = "Different"
	}

	if match.Promoted {
		go storage.RecordPromotion(storage.PromotionAuditEntry{
			ProductID:  deps.ProductID,
			ROIIdx:     rec.Idx,
			Similarity: match.AISimilarity,
			Threshold:  *rec.AIThreshold,
			RecordedAt: time.Now(),
		})
	}

	if match.GoldenPath != "" {
		goldenCropPath := filepath.Join(sessionOutputDir, fmt.Sprintf("golden_%d.jpg", rec.Idx))
		if img, openErr := saveGoldenCopy(match.GoldenPath, goldenCropPath); openErr == nil {
			result.Payload["golden_image_path"] = goldenCropPath
			_ = img
		}
	}
	return nil
}
