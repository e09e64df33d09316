// orchestrator.go - Inspection Orchestrator (C11), spec.md §4.4/§4.1/§4.5.
// Drives a single inspection end to end: session resolution, image
// resolution per group, ROI normalization, grouped parallel ROI execution,
// barcode ladder resolution, and response assembly with path projection.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/visualaoi/inspector/internal/barcodelink"
	"github.com/visualaoi/inspector/internal/capability"
	"github.com/visualaoi/inspector/internal/common"
	"github.com/visualaoi/inspector/internal/executor"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/imagesource"
	"github.com/visualaoi/inspector/internal/ladder"
	"github.com/visualaoi/inspector/internal/pathmap"
	"github.com/visualaoi/inspector/internal/roi"
	"github.com/visualaoi/inspector/internal/runner"
	"github.com/visualaoi/inspector/internal/session"
	"github.com/visualaoi/inspector/internal/storage"
)

// Group is one (focus, exposure) capture group: one image source shared by
// the ROIs listed in Indices.
type Group struct {
	Focus    int
	Exposure int
	Source   imagesource.Request
	Indices  []int
}

// Request is the Orchestrator's transport-agnostic input, already decoded
// from whichever RPC shape (single-image or grouped) the adapter received.
type Request struct {
	SessionID      string
	ProductID      string
	ROIConfig      json.RawMessage // the product's full rois_config_<product>.json contents
	Groups         []Group
	DeviceBarcodes map[int]string
	DeviceBarcode  string
}

// DeviceSummary mirrors spec.md §3's device_summaries entry.
type DeviceSummary struct {
	DeviceID   int    `json:"device_id"`
	Barcode    string `json:"barcode"`
	Passed     bool   `json:"device_passed"`
	PassedROIs int    `json:"passed_rois"`
	TotalROIs  int    `json:"total_rois"`
}

// OverallResult mirrors spec.md §3's overall_result entry.
type OverallResult struct {
	Passed     bool `json:"passed"`
	TotalROIs  int  `json:"total_rois"`
	PassedROIs int  `json:"passed_rois"`
	FailedROIs int  `json:"failed_rois"`
}

// ROIResultView is one roi_results entry in client-facing form.
type ROIResultView struct {
	ROIID    int
	DeviceID int
	TypeName string
	Passed   bool
	Coords   [4]int
	Error    string
	Payload  map[string]any
}

// MarshalJSON flattens the type-specific Payload fields (ai_similarity,
// barcode_values, ocr_text, detected_color, ...) alongside the common ROI
// fields into one object, matching spec.md §3's "type-specific payload"
// roi_results shape.
func (v ROIResultView) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"roi_id":        v.ROIID,
		"device_id":     v.DeviceID,
		"roi_type_name": v.TypeName,
		"passed":        v.Passed,
		"coords":        v.Coords,
	}
	if v.Error != "" {
		out["error"] = v.Error
	}
	for k, val := range v.Payload {
		out[k] = val
	}
	return json.Marshal(out)
}

// Response mirrors spec.md §3's Inspection Result aggregate.
type Response struct {
	OverallResult   OverallResult         `json:"overall_result"`
	DeviceSummaries map[int]DeviceSummary `json:"device_summaries"`
	ROIResults      []ROIResultView       `json:"roi_results"`
	ProcessingTime  float64               `json:"processing_time"`
}

// Orchestrator wires together every component needed to run one inspection.
type Orchestrator struct {
	Sessions    *session.Manager
	Golden      *golden.Store
	Barcode     capability.BarcodeDecoder
	OCR         capability.OCRProvider
	Feature     capability.FeatureExtractor
	Linker      *barcodelink.Client
	SharedRoot  string
	ClientMount string
	WorkerMax   int
	Deadline    time.Duration // 0 = no deadline
}

// Run executes req end to end and returns a client-facing Response with
// paths already projected to client-mount form (P7).
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	ic := common.NewInspectionContext(req.SessionID, req.ProductID)

	sess, err := o.Sessions.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	sess.Acquire()
	defer sess.Release()

	if o.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Deadline)
		defer cancel()
	}

	ic.StartStep("normalize_rois")
	allRecs, err := roi.NormalizeAll(req.ROIConfig)
	if err != nil {
		ic.EndStep("error", err)
		return nil, err
	}
	ic.EndStep("ok", nil)

	recByIdx := make(map[int]*roi.Record, len(allRecs))
	for _, r := range allRecs {
		recByIdx[r.Idx] = r
	}

	deps := executor.Deps{
		Barcode:   o.Barcode,
		OCR:       o.OCR,
		Feature:   o.Feature,
		Golden:    o.Golden,
		ProductID: req.ProductID,
	}

	var allResults []executor.Result
	for _, group := range req.Groups {
		select {
		case <-ctx.Done():
			for _, idx := range group.Indices {
				if rec, ok := recByIdx[idx]; ok {
					allResults = append(allResults, executor.Result{Idx: rec.Idx, DeviceLocation: rec.DeviceLocation, TypeName: rec.Type.String(), Err: common.ErrTimeout})
				}
			}
			continue
		default:
		}

		ic.StartStep(fmt.Sprintf("group focus=%d exposure=%d", group.Focus, group.Exposure))
		resolved, err := imagesource.Resolve(group.Source, sess.InputDir)
		if err != nil {
			ic.EndStep("error", err)
			for _, idx := range group.Indices {
				if rec, ok := recByIdx[idx]; ok {
					allResults = append(allResults, executor.Result{Idx: rec.Idx, DeviceLocation: rec.DeviceLocation, TypeName: rec.Type.String(), Err: err})
				}
			}
			continue
		}
		if resolved.Degraded {
			ic.LogWarning("group focus=%d exposure=%d used degraded inline image source", group.Focus, group.Exposure)
		}

		var groupRecs []*roi.Record
		for _, idx := range group.Indices {
			if rec, ok := recByIdx[idx]; ok {
				groupRecs = append(groupRecs, rec)
			}
		}

		groupResults := runner.Run(ctx, groupRecs, resolved.Image, deps, sess.OutputDir, o.WorkerMax)
		allResults = append(allResults, groupResults...)
		ic.EndStep("ok", nil)
	}

	// each group's results (runner.Run) are sorted within that group only;
	// re-sort across all groups so roi_results is ascending by idx
	// regardless of group iteration order (P4), which is itself
	// nondeterministic for grouped inspections (captured_images is a map).
	sort.Slice(allResults, func(a, b int) bool { return allResults[a].Idx < allResults[b].Idx })

	ic.StartStep("resolve_barcode_ladder")
	devices := deviceLocations(allRecs)
	var barcodeRecs []*roi.Record
	for _, r := range allRecs {
		if r.Type == roi.Barcode {
			barcodeRecs = append(barcodeRecs, r)
		}
	}
	ladderOut := ladder.Resolve(ctx, devices, barcodeRecs, allResults, req.DeviceBarcodes, req.DeviceBarcode, o.Linker)
	ic.EndStep("ok", nil)

	resp := assembleResponse(allRecs, allResults, ladderOut, o.SharedRoot, o.ClientMount)
	resp.ProcessingTime = time.Since(start).Seconds()

	ic.Summary(resp.OverallResult.Passed)

	go storage.RecordInspection(storage.InspectionAuditEntry{
		InspectionID:   ic.InspectionID,
		SessionID:      req.SessionID,
		ProductID:      req.ProductID,
		Passed:         resp.OverallResult.Passed,
		TotalROIs:      resp.OverallResult.TotalROIs,
		PassedROIs:     resp.OverallResult.PassedROIs,
		ProcessingTime: resp.ProcessingTime,
		RecordedAt:     time.Now(),
	})

	return resp, nil
}

func deviceLocations(recs []*roi.Record) []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range recs {
		if !seen[r.DeviceLocation] {
			seen[r.DeviceLocation] = true
			out = append(out, r.DeviceLocation)
		}
	}
	return out
}

func assembleResponse(recs []*roi.Record, results []executor.Result, ladderOut map[int]ladder.Outcome, sharedRoot, clientMount string) *Response {
	recByIdx := make(map[int]*roi.Record, len(recs))
	for _, r := range recs {
		recByIdx[r.Idx] = r
	}

	views := make([]ROIResultView, 0, len(results))
	devicePassed := make(map[int]bool)
	devicePassedCount := make(map[int]int)
	deviceTotalCount := make(map[int]int)

	for _, res := range results {
		rec := recByIdx[res.Idx]
		view := ROIResultView{
			ROIID:    res.Idx,
			DeviceID: res.DeviceLocation,
			TypeName: res.TypeName,
			Passed:   res.Passed,
			Payload:  projectPayloadPaths(res.Payload, sharedRoot, clientMount),
		}
		if rec != nil {
			view.Coords = [4]int{rec.Coords.X1, rec.Coords.Y1, rec.Coords.X2, rec.Coords.Y2}
		}
		if res.Err != nil {
			view.Error = res.Err.Error()
		}
		views = append(views, view)

		if _, ok := devicePassed[res.DeviceLocation]; !ok {
			devicePassed[res.DeviceLocation] = true
		}
		devicePassed[res.DeviceLocation] = devicePassed[res.DeviceLocation] && res.Passed
		deviceTotalCount[res.DeviceLocation]++
		if res.Passed {
			devicePassedCount[res.DeviceLocation]++
		}
	}

	summaries := make(map[int]DeviceSummary, len(ladderOut))
	overallPassed := true
	for device, outcome := range ladderOut {
		passed := devicePassed[device]
		overallPassed = overallPassed && passed
		summaries[device] = DeviceSummary{
			DeviceID:   device,
			Barcode:    outcome.Barcode,
			Passed:     passed,
			PassedROIs: devicePassedCount[device],
			TotalROIs:  deviceTotalCount[device],
		}
	}

	totalROIs := len(views)
	passedROIs := 0
	for _, v := range views {
		if v.Passed {
			passedROIs++
		}
	}

	return &Response{
		OverallResult: OverallResult{
			Passed:     overallPassed && totalROIs > 0,
			TotalROIs:  totalROIs,
			PassedROIs: passedROIs,
			FailedROIs: totalROIs - passedROIs,
		},
		DeviceSummaries: summaries,
		ROIResults:      views,
	}
}

// projectPayloadPaths rewrites any string-valued payload entry that looks
// like a server-local path under sharedRoot to its client-mount form (P7).
func projectPayloadPaths(payload map[string]any, sharedRoot, clientMount string) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = pathmap.ToClientMount(s, sharedRoot, clientMount)
			continue
		}
		out[k] = v
	}
	return out
}
