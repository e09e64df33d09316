// roi.go - the canonical ROI record (v3.2) and its dual-shape normalizer (C5).
//
// Source configs arrive either as a keyed object or as a positional tuple, and
// both may omit trailing optional fields. Normalize() is the single entry point
// that turns either shape into one canonical, validated Record.
package roi

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/visualaoi/inspector/internal/common"
)

// Type enumerates the four ROI processors.
type Type int

const (
	Barcode Type = 1
	Compare Type = 2
	OCR     Type = 3
	Color   Type = 4
)

func (t Type) String() string {
	switch t {
	case Barcode:
		return "Barcode"
	case Compare:
		return "Compare"
	case OCR:
		return "OCR"
	case Color:
		return "Color"
	default:
		return "Unknown"
	}
}

// Rect is an axis-aligned rectangle in source-image pixel space.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// SimpleColorConfig is the "target + tolerance" color ROI variant.
type SimpleColorConfig struct {
	ExpectedColor      [3]int  `json:"expected_color"`
	ColorTolerance     float64 `json:"color_tolerance"`
	MinPixelPercentage float64 `json:"min_pixel_percentage"`
}

// ColorRange is one named entry of the enumerated-ranges color ROI variant.
type ColorRange struct {
	Name       string  `json:"name"`
	Lower      [3]int  `json:"lower"`
	Upper      [3]int  `json:"upper"`
	ColorSpace string  `json:"color_space"` // "RGB" | "HSV"
	Threshold  float64 `json:"threshold"`
}

// ColorConfig holds exactly one of the two color ROI variants.
type ColorConfig struct {
	Simple *SimpleColorConfig
	Ranges []ColorRange
}

// IsSimple reports whether the simple target+tolerance variant is populated.
func (c *ColorConfig) IsSimple() bool { return c != nil && c.Simple != nil }

// IsRanges reports whether the enumerated-ranges variant is populated.
func (c *ColorConfig) IsRanges() bool { return c != nil && len(c.Ranges) > 0 }

// Record is the canonical, immutable ROI value every executor operates on.
type Record struct {
	Idx             int    `validate:"required,gt=0"`
	Type            Type   `validate:"required,oneof=1 2 3 4"`
	Coords          Rect
	Focus           int `validate:"gte=0"`
	Exposure        int `validate:"gte=0"`
	AIThreshold     *float64
	FeatureMethod   string
	Rotation        int
	DeviceLocation  int `validate:"gt=0"`
	ExpectedText    *string
	IsDeviceBarcode *bool
	ColorConfig     *ColorConfig
}

var validate = validator.New()

// Validate enforces the type-specific required fields and rectangle sanity
// spelled out in spec.md §3, returning common.ErrConfigInvalid on failure.
func (r *Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: roi %d: %v", common.ErrConfigInvalid, r.Idx, err)
	}
	if r.Coords.X1 >= r.Coords.X2 || r.Coords.Y1 >= r.Coords.Y2 {
		return fmt.Errorf("%w: roi %d: coords must satisfy x1<x2, y1<y2", common.ErrConfigInvalid, r.Idx)
	}
	switch r.Type {
	case Compare:
		if r.AIThreshold == nil {
			return fmt.Errorf("%w: roi %d: ai_threshold required for Compare ROIs", common.ErrConfigInvalid, r.Idx)
		}
		if *r.AIThreshold < 0 || *r.AIThreshold > 1 {
			return fmt.Errorf("%w: roi %d: ai_threshold must be in [0,1]", common.ErrConfigInvalid, r.Idx)
		}
	case Color:
		if r.ColorConfig == nil || (r.ColorConfig.IsSimple() == r.ColorConfig.IsRanges()) {
			return fmt.Errorf("%w: roi %d: exactly one color_config variant required for Color ROIs", common.ErrConfigInvalid, r.Idx)
		}
	}
	return nil
}

// objectForm mirrors the keyed-object JSON shape; every field is optional at
// the unmarshal layer so short/partial configs don't fail to parse, with
// type-specific requirements enforced later by Validate.
type objectForm struct {
	Idx             int             `json:"idx"`
	Type            int             `json:"type"`
	Coords          []int           `json:"coords"`
	Focus           int             `json:"focus"`
	Exposure        int             `json:"exposure"`
	AIThreshold     *float64        `json:"ai_threshold"`
	FeatureMethod   string          `json:"feature_method"`
	Rotation        int             `json:"rotation"`
	DeviceLocation  int             `json:"device_location"`
	ExpectedText    *string         `json:"expected_text"`
	IsDeviceBarcode *bool           `json:"is_device_barcode"`
	ColorConfig     json.RawMessage `json:"color_config"`
}

// rawColorConfig distinguishes the two color_config shapes by which keys are
// present: {expected_color,...} vs {color_ranges:[...]}.
type rawColorConfig struct {
	ExpectedColor      *[3]int      `json:"expected_color"`
	ColorTolerance     float64      `json:"color_tolerance"`
	MinPixelPercentage float64      `json:"min_pixel_percentage"`
	ColorRanges        []ColorRange `json:"color_ranges"`
}

// Normalize accepts either a JSON object or a JSON array (tuple form) and
// produces one canonical, validated Record. Unknown trailing object fields
// are ignored by json.Unmarshal; short tuples simply leave trailing fields
// at their zero/absent value.
func Normalize(raw json.RawMessage) (*Record, error) {
	trimmed := skipSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return normalizeTuple(trimmed)
	}
	return normalizeObject(trimmed)
}

func skipSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func normalizeObject(raw json.RawMessage) (*Record, error) {
	var of objectForm
	if err := json.Unmarshal(raw, &of); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}
	rec, err := fromObjectForm(of)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// tuple ordering: [idx, type, x1, y1, x2, y2, focus, exposure, ai_threshold,
// feature_method, rotation, device_location, expected_text, is_device_barcode, color_config]
func normalizeTuple(raw json.RawMessage) (*Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}

	get := func(i int) json.RawMessage {
		if i < len(items) {
			return items[i]
		}
		return nil
	}

	var of objectForm
	if v := get(0); v != nil {
		json.Unmarshal(v, &of.Idx)
	}
	if v := get(1); v != nil {
		json.Unmarshal(v, &of.Type)
	}
	x1, y1, x2, y2 := 0, 0, 0, 0
	if v := get(2); v != nil {
		json.Unmarshal(v, &x1)
	}
	if v := get(3); v != nil {
		json.Unmarshal(v, &y1)
	}
	if v := get(4); v != nil {
		json.Unmarshal(v, &x2)
	}
	if v := get(5); v != nil {
		json.Unmarshal(v, &y2)
	}
	of.Coords = []int{x1, y1, x2, y2}
	if v := get(6); v != nil {
		json.Unmarshal(v, &of.Focus)
	}
	if v := get(7); v != nil {
		json.Unmarshal(v, &of.Exposure)
	}
	if v := get(8); v != nil {
		var f float64
		if json.Unmarshal(v, &f) == nil {
			of.AIThreshold = &f
		}
	}
	if v := get(9); v != nil {
		json.Unmarshal(v, &of.FeatureMethod)
	}
	if v := get(10); v != nil {
		json.Unmarshal(v, &of.Rotation)
	}
	if v := get(11); v != nil {
		json.Unmarshal(v, &of.DeviceLocation)
	}
	if v := get(12); v != nil {
		var s string
		if json.Unmarshal(v, &s) == nil {
			of.ExpectedText = &s
		}
	}
	if v := get(13); v != nil {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			of.IsDeviceBarcode = &b
		}
	}
	of.ColorConfig = get(14)

	rec, err := fromObjectForm(of)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func fromObjectForm(of objectForm) (*Record, error) {
	rec := &Record{
		Idx:             of.Idx,
		Type:            Type(of.Type),
		Focus:           of.Focus,
		Exposure:        of.Exposure,
		AIThreshold:     of.AIThreshold,
		FeatureMethod:   of.FeatureMethod,
		Rotation:        of.Rotation,
		DeviceLocation:  of.DeviceLocation,
		ExpectedText:    of.ExpectedText,
		IsDeviceBarcode: of.IsDeviceBarcode,
	}
	if len(of.Coords) >= 4 {
		rec.Coords = Rect{X1: of.Coords[0], Y1: of.Coords[1], X2: of.Coords[2], Y2: of.Coords[3]}
	}

	if len(of.ColorConfig) > 0 && string(of.ColorConfig) != "null" {
		var rcc rawColorConfig
		if err := json.Unmarshal(of.ColorConfig, &rcc); err != nil {
			return nil, fmt.Errorf("%w: roi %d: bad color_config: %v", common.ErrConfigInvalid, of.Idx, err)
		}
		cc := &ColorConfig{}
		if len(rcc.ColorRanges) > 0 {
			cc.Ranges = rcc.ColorRanges
		} else if rcc.ExpectedColor != nil {
			cc.Simple = &SimpleColorConfig{
				ExpectedColor:      *rcc.ExpectedColor,
				ColorTolerance:     rcc.ColorTolerance,
				MinPixelPercentage: rcc.MinPixelPercentage,
			}
		}
		rec.ColorConfig = cc
	}

	return rec, nil
}

// NormalizeAll normalizes a product's full ROI config array, failing fast
// with a pointer to the first offending record (spec.md §7 ConfigInvalid).
func NormalizeAll(raw json.RawMessage) ([]*Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		rec, err := Normalize(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
