package executor

import (
	"fmt"
	"image"

	"github.com/visualaoi/inspector/internal/capability"
	"github.com/visualaoi/inspector/internal/roi"
)

// executeColor implements spec.md §4.2.4: exactly one of the simple
// target+tolerance variant or the enumerated-ranges variant applies, per
// ROI Normalizer (C5) validation.
func executeColor(rec *roi.Record, crop image.Image, result *Result) error {
	cc := rec.ColorConfig
	switch {
	case cc.IsSimple():
		target := capability.RGB(cc.Simple.ExpectedColor)
		m := capability.MatchSimpleColor(crop, target, cc.Simple.ColorTolerance, cc.Simple.MinPixelPercentage)
		result.Passed = m.Passed
		result.Payload["match_percentage"] = m.MatchPercentage
		result.Payload["detected_color"] = m.DetectedColor
		result.Payload["dominant_color"] = []int{m.DominantColor[0], m.DominantColor[1], m.DominantColor[2]}

	case cc.IsRanges():
		specs := make([]capability.ColorRangeSpec, 0, len(cc.Ranges))
		for _, r := range cc.Ranges {
			specs = append(specs, capability.ColorRangeSpec{
				Name:       r.Name,
				Lower:      capability.RGB(r.Lower),
				Upper:      capability.RGB(r.Upper),
				ColorSpace: r.ColorSpace,
				Threshold:  r.Threshold,
			})
		}
		m := capability.MatchColorRanges(crop, specs)
		result.Passed = m.Passed
		result.Payload["match_percentage"] = m.MatchPercentage
		result.Payload["match_percentage_raw"] = m.MatchPercentageRaw
		result.Payload["detected_color"] = m.DetectedColor
		result.Payload["dominant_color"] = []int{m.DominantColor[0], m.DominantColor[1], m.DominantColor[2]}

	default:
		return fmt.Errorf("executor: color roi %d has no color_config variant", rec.Idx)
	}
	return nil
}
