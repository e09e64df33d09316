// ladder.go - Barcode Resolution Ladder (C9), spec.md §4.5. Runs once per
// inspection after every ROI task has terminated (spec.md §5's "totally
// ordered view of barcode ROI results" guarantee) - the Orchestrator calls
// Resolve only after the Parallel ROI Runner (C8) has returned.
package ladder

import (
	"context"

	"github.com/visualaoi/inspector/internal/barcodelink"
	"github.com/visualaoi/inspector/internal/executor"
	"github.com/visualaoi/inspector/internal/roi"
)

const unresolved = "N/A"

// Outcome is the canonical barcode decided for one device_location, plus
// whether the Barcode Linking Client was consulted.
type Outcome struct {
	Barcode  string
	Priority int // 0-4, see spec.md §4.5's priority table; -1 if unresolved is moot (never set)
	Linked   bool
}

// barcodeROIResult is the subset of executor.Result the ladder needs per
// barcode-typed ROI.
type barcodeROIResult struct {
	deviceLocation  int
	isDeviceBarcode bool
	values          []string
}

// Resolve applies the five-priority rule per device_location and, for any
// selection made at priority 0-3, invokes the linker (priority 4's literal
// "N/A" is never linked).
func Resolve(
	ctx context.Context,
	devices []int,
	barcodeResults []*roi.Record,
	roiResults []executor.Result,
	deviceBarcodes map[int]string,
	deviceBarcode string,
	linker *barcodelink.Client,
) map[int]Outcome {
	byDevice := groupBarcodeResults(barcodeResults, roiResults)

	out := make(map[int]Outcome, len(devices))
	for _, d := range devices {
		raw, priority, found := selectForDevice(d, byDevice[d], deviceBarcodes, deviceBarcode)
		if !found {
			out[d] = Outcome{Barcode: unresolved, Priority: 4}
			continue
		}

		canonical, linked := raw, false
		if linker != nil {
			canonical, linked = linker.Link(ctx, priority, raw)
		}
		out[d] = Outcome{Barcode: canonical, Priority: priority, Linked: linked}
	}
	return out
}

func groupBarcodeResults(recs []*roi.Record, results []executor.Result) map[int][]barcodeROIResult {
	recByIdx := make(map[int]*roi.Record, len(recs))
	for _, r := range recs {
		recByIdx[r.Idx] = r
	}

	out := make(map[int][]barcodeROIResult)
	for _, res := range results {
		rec, ok := recByIdx[res.Idx]
		if !ok || rec.Type != roi.Barcode {
			continue
		}
		values, _ := res.Payload["barcode_values"].([]string)
		isDevice := rec.IsDeviceBarcode != nil && *rec.IsDeviceBarcode
		out[res.DeviceLocation] = append(out[res.DeviceLocation], barcodeROIResult{
			deviceLocation:  res.DeviceLocation,
			isDeviceBarcode: isDevice,
			values:          values,
		})
	}
	return out
}

// selectForDevice applies the five-priority rule for a single device.
func selectForDevice(device int, results []barcodeROIResult, deviceBarcodes map[int]string, deviceBarcode string) (raw string, priority int, found bool) {
	// P0: is_device_barcode=true with non-empty barcode_values.
	for _, r := range results {
		if r.isDeviceBarcode && len(r.values) > 0 {
			return r.values[0], 0, true
		}
	}
	// P1: any barcode ROI for this device with non-empty barcode_values.
	for _, r := range results {
		if len(r.values) > 0 {
			return r.values[0], 1, true
		}
	}
	// P2: caller-supplied device_barcodes[d].
	if v, ok := deviceBarcodes[device]; ok && v != "" {
		return v, 2, true
	}
	// P3: caller-supplied singular device_barcode.
	if deviceBarcode != "" {
		return deviceBarcode, 3, true
	}
	// P4: terminal "N/A", never linked.
	return "", 4, false
}
