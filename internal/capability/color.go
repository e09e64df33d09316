// color.go - the Color ROI Matcher's pixel math (spec.md §4.2.4). No library
// in the retrieved examples pack offers RGB/HSV range matching or
// channel-wise color averaging (go-colorful, gocv and similar are absent from
// every example repo's go.mod); this is the one piece of domain logic built
// directly on image/math stdlib, per DESIGN.md's standard-library
// justification entry for this file.
package capability

import (
	"image"
	"math"
)

// RGB is a channel-wise 0-255 color triple.
type RGB [3]int

// SimpleColorResult is the outcome of matching against a single target+tolerance.
type SimpleColorResult struct {
	MatchPercentage float64
	Passed          bool
	DetectedColor   string
	DominantColor   RGB
}

// MatchSimpleColor implements the "target + tolerance" color ROI variant.
func MatchSimpleColor(img image.Image, target RGB, tolerance, minPixelPercentage float64) SimpleColorResult {
	lo, hi := clampRange(target, tolerance)

	bounds := img.Bounds()
	total := 0
	matched := 0
	var sumR, sumG, sumB int64
	var matchSumR, matchSumG, matchSumB int64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := rgb8(img, x, y)
			total++
			sumR += int64(r)
			sumG += int64(g)
			sumB += int64(b)

			if r >= lo[0] && r <= hi[0] && g >= lo[1] && g <= hi[1] && b >= lo[2] && b <= hi[2] {
				matched++
				matchSumR += int64(r)
				matchSumG += int64(g)
				matchSumB += int64(b)
			}
		}
	}

	result := SimpleColorResult{DetectedColor: "target"}
	if total == 0 {
		return result
	}

	result.MatchPercentage = 100 * float64(matched) / float64(total)
	result.Passed = result.MatchPercentage >= minPixelPercentage

	if matched > 0 {
		result.DominantColor = RGB{int(matchSumR / int64(matched)), int(matchSumG / int64(matched)), int(matchSumB / int64(matched))}
	} else {
		result.DominantColor = RGB{int(sumR / int64(total)), int(sumG / int64(total)), int(sumB / int64(total))}
	}
	return result
}

// clampRange builds the inclusive per-channel [target-tol, target+tol] box,
// clamped to [0,255] on both ends (spec.md §5 edge case: tolerance > 255).
func clampRange(target RGB, tolerance float64) (lo, hi RGB) {
	for i := 0; i < 3; i++ {
		l := int(math.Floor(float64(target[i]) - tolerance))
		h := int(math.Ceil(float64(target[i]) + tolerance))
		if l < 0 {
			l = 0
		}
		if h > 255 {
			h = 255
		}
		lo[i] = l
		hi[i] = h
	}
	return
}

// ColorRangeSpec is one named entry of the enumerated-ranges variant.
type ColorRangeSpec struct {
	Name       string
	Lower      RGB
	Upper      RGB
	ColorSpace string // "RGB" | "HSV"
	Threshold  float64
}

// RangesColorResult is the outcome of matching against a set of named ranges.
type RangesColorResult struct {
	MatchPercentage    float64 // capped at 100, per the winning name
	MatchPercentageRaw float64 // uncapped sum for the winning name
	Passed             bool
	DetectedColor      string
	DominantColor      RGB
}

// MatchColorRanges implements the enumerated-ranges color ROI variant:
// per-range match percentage, grouped and summed by name, argmax selection,
// then the cap applied only to the reported value of the winner (spec.md
// §4.2.4 and the Open Question decision recorded in SPEC_FULL.md/DESIGN.md).
func MatchColorRanges(img image.Image, ranges []ColorRangeSpec) RangesColorResult {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()

	sums := make(map[string]float64)
	thresholds := make(map[string]float64)
	var domSumR, domSumG, domSumB int64
	var domCount int

	for _, rng := range ranges {
		thresholds[rng.Name] = rng.Threshold
		matched := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b := rgb8(img, x, y)
				var in bool
				var cr, cg, cb int
				if rng.ColorSpace == "HSV" {
					h, s, v := rgbToHSV(r, g, b)
					in = h >= float64(rng.Lower[0]) && h <= float64(rng.Upper[0]) &&
						s >= float64(rng.Lower[1]) && s <= float64(rng.Upper[1]) &&
						v >= float64(rng.Lower[2]) && v <= float64(rng.Upper[2])
					cr, cg, cb = r, g, b
				} else {
					in = r >= rng.Lower[0] && r <= rng.Upper[0] &&
						g >= rng.Lower[1] && g <= rng.Upper[1] &&
						b >= rng.Lower[2] && b <= rng.Upper[2]
					cr, cg, cb = r, g, b
				}
				if in {
					matched++
					domSumR += int64(cr)
					domSumG += int64(cg)
					domSumB += int64(cb)
					domCount++
				}
			}
		}
		if total > 0 {
			sums[rng.Name] += 100 * float64(matched) / float64(total)
		}
	}

	result := RangesColorResult{DetectedColor: "Unknown"}
	// argmax over first-occurrence order in ranges, avoiding Go map-iteration
	// order nondeterminism when sums tie.
	winner, best := argmaxStable(ranges, sums)

	if best <= 0 {
		return result
	}

	result.DetectedColor = winner
	result.MatchPercentageRaw = best
	result.MatchPercentage = math.Min(100, best)
	result.Passed = result.MatchPercentage >= thresholds[winner]

	if domCount > 0 {
		result.DominantColor = RGB{int(domSumR / int64(domCount)), int(domSumG / int64(domCount)), int(domSumB / int64(domCount))}
	}
	return result
}

// argmaxStable picks the name with the highest sum, breaking ties by first
// occurrence in the original ranges slice so results are reproducible.
func argmaxStable(ranges []ColorRangeSpec, sums map[string]float64) (string, float64) {
	seen := make(map[string]bool)
	winner := ""
	best := 0.0
	first := true
	for _, rng := range ranges {
		if seen[rng.Name] {
			continue
		}
		seen[rng.Name] = true
		sum := sums[rng.Name]
		if first || sum > best {
			winner = rng.Name
			best = sum
			first = false
		}
	}
	return winner, best
}

func rgb8(img image.Image, x, y int) (int, int, int) {
	r, g, b, _ := img.At(x, y).RGBA()
	return int(r >> 8), int(g >> 8), int(b >> 8)
}

// rgbToHSV converts 0-255 RGB to H in [0,360), S/V in [0,100], matching the
// ranges most color pickers report them in (spec.md's lower/upper bounds for
// an HSV range are expected in that scale).
func rgbToHSV(r, g, b int) (h, s, v float64) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	v = max * 100
	delta := max - min

	if max == 0 {
		s = 0
	} else {
		s = (delta / max) * 100
	}

	if delta == 0 {
		h = 0
	} else {
		switch max {
		case rf:
			h = 60 * math.Mod((gf-bf)/delta, 6)
		case gf:
			h = 60 * ((bf-rf)/delta + 2)
		case bf:
			h = 60 * ((rf-gf)/delta + 4)
		}
		if h < 0 {
			h += 360
		}
	}
	return h, s, v
}
