// handlers.go - thin gin-gonic handlers (C12) that decode the RPC surface of
// spec.md §6 into orchestrator.Request/session.Manager/golden.Store calls and
// re-encode the result as JSON. No inspection logic lives here; every
// decision (pass/fail, promotion, ladder selection) happens in the core
// packages this file only wires together - same split the teacher's
// AnalyzeReceiptHandler/TestTemplateHandler draw between HTTP concerns and
// internal/ai, internal/processor, internal/storage.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/visualaoi/inspector/configs"
	"github.com/visualaoi/inspector/internal/common"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/imagesource"
	"github.com/visualaoi/inspector/internal/orchestrator"
	"github.com/visualaoi/inspector/internal/session"
)

// Server holds the dependencies every handler needs, set once at startup -
// the teacher wires its equivalents (mongoDB, masterDataCacheMap) as package
// globals in internal/storage; this module threads the same singletons
// through one small struct instead so tests can construct an isolated Server
// without touching global state.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Manager
	Golden       *golden.Store
}

// imageSourceDTO is the wire shape of "one of image_path | image_filename |
// image" shared by both the single-image and grouped inspect routes.
type imageSourceDTO struct {
	ImagePath     string `json:"image_path"`
	ImageFilename string `json:"image_filename"`
	Image         string `json:"image"`
}

func (d imageSourceDTO) toRequest() imagesource.Request {
	return imagesource.Request{ImagePath: d.ImagePath, ImageFilename: d.ImageFilename, ImageBase64: d.Image}
}

// deviceBarcodeEntry is the list form of device_barcodes: [{device_id,barcode}...].
type deviceBarcodeEntry struct {
	DeviceID int    `json:"device_id"`
	Barcode  string `json:"barcode"`
}

// deviceBarcodesDTO accepts device_barcodes as either a {device_id: barcode}
// object or a [{device_id,barcode}...] list, per spec.md §6.
type deviceBarcodesDTO struct {
	raw json.RawMessage
}

func (d *deviceBarcodesDTO) UnmarshalJSON(b []byte) error {
	d.raw = append([]byte(nil), b...)
	return nil
}

func (d deviceBarcodesDTO) toMap() map[int]string {
	if len(d.raw) == 0 {
		return nil
	}
	var asObject map[int]string
	if err := json.Unmarshal(d.raw, &asObject); err == nil {
		return asObject
	}
	var asList []deviceBarcodeEntry
	if err := json.Unmarshal(d.raw, &asList); err == nil {
		out := make(map[int]string, len(asList))
		for _, e := range asList {
			out[e.DeviceID] = e.Barcode
		}
		return out
	}
	return nil
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	ProductID  string `json:"product_id" binding:"required"`
	ClientInfo string `json:"client_info"`
}

// CreateSession opens a new session directory tree for a product.
func (s *Server) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	sess, err := s.Sessions.Create(req.ProductID, req.ClientInfo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID})
}

// DestroySession removes a session directory tree, best-effort.
func (s *Server) DestroySession(c *gin.Context) {
	id := c.Param("id")
	if err := s.Sessions.Destroy(id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": "failed to destroy session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "destroyed", "session_id": id})
}

// inspectRequest is the body of POST /api/v1/sessions/:id/inspect.
type inspectRequest struct {
	imageSourceDTO
	Focus          int               `json:"focus"`
	Exposure       int               `json:"exposure"`
	DeviceBarcodes deviceBarcodesDTO `json:"device_barcodes"`
	DeviceBarcode  string            `json:"device_barcode"`
}

// Inspect runs every ROI in the session's product config against one
// decoded image, i.e. a single implicit capture group covering all indices.
func (s *Server) Inspect(c *gin.Context) {
	sessionID := c.Param("id")

	var req inspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	sess, err := s.Sessions.Get(sessionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "session lookup failed", "details": err.Error()})
		return
	}

	roiConfig, allIdx, err := loadROIConfig(sess.ProductID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "failed to load roi config", "details": err.Error()})
		return
	}

	orchReq := orchestrator.Request{
		SessionID:      sessionID,
		ProductID:      sess.ProductID,
		ROIConfig:      roiConfig,
		DeviceBarcodes: req.DeviceBarcodes.toMap(),
		DeviceBarcode:  req.DeviceBarcode,
		Groups: []orchestrator.Group{
			{Focus: req.Focus, Exposure: req.Exposure, Source: req.toRequest(), Indices: allIdx},
		},
	}

	s.runInspection(c, orchReq)
}

// groupedInspectRequest is the body of POST /api/v1/process_grouped_inspection.
type groupedInspectRequest struct {
	SessionID      string                        `json:"session_id" binding:"required"`
	DeviceBarcodes deviceBarcodesDTO             `json:"device_barcodes"`
	DeviceBarcode  string                        `json:"device_barcode"`
	CapturedImages map[string]groupedCaptureSpec `json:"captured_images" binding:"required"`
}

type groupedCaptureSpec struct {
	imageSourceDTO
	Focus    int   `json:"focus"`
	Exposure int   `json:"exposure"`
	ROIs     []int `json:"rois" binding:"required"`
}

// GroupedInspect runs one capture group per (focus, exposure) key against the
// ROI subset it lists, fanning each group's image resolution and ROI
// execution out independently (spec.md §4.4).
func (s *Server) GroupedInspect(c *gin.Context) {
	var req groupedInspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	sess, err := s.Sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "session lookup failed", "details": err.Error()})
		return
	}

	roiConfig, _, err := loadROIConfig(sess.ProductID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "failed to load roi config", "details": err.Error()})
		return
	}

	groups := make([]orchestrator.Group, 0, len(req.CapturedImages))
	for _, spec := range req.CapturedImages {
		groups = append(groups, orchestrator.Group{
			Focus:    spec.Focus,
			Exposure: spec.Exposure,
			Source:   spec.toRequest(),
			Indices:  spec.ROIs,
		})
	}

	orchReq := orchestrator.Request{
		SessionID:      req.SessionID,
		ProductID:      sess.ProductID,
		ROIConfig:      roiConfig,
		DeviceBarcodes: req.DeviceBarcodes.toMap(),
		DeviceBarcode:  req.DeviceBarcode,
		Groups:         groups,
	}

	s.runInspection(c, orchReq)
}

func (s *Server) runInspection(c *gin.Context, req orchestrator.Request) {
	resp, err := s.Orchestrator.Run(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "inspection failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// goldenSampleView is one entry of GET /api/v1/products/:id/golden.
type goldenSampleView struct {
	ROIIdx   int    `json:"roi_idx"`
	Filename string `json:"filename"`
	IsBest   bool   `json:"is_best"`
	ModTime  string `json:"mod_time"`
}

// ListGolden is a thin read-through over the Golden Store (C2) - the core
// matcher is unaware this endpoint exists; it only ever reads/writes through
// the same Store directly (spec.md §6's "CRUD ... out of scope beyond what
// the matcher requires" note).
func (s *Server) ListGolden(c *gin.Context) {
	product := c.Param("id")

	indices, err := s.Golden.ListROIIndices(product)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list golden samples", "details": err.Error()})
		return
	}

	var out []goldenSampleView
	for _, idx := range indices {
		candidates, err := s.Golden.ListCandidates(product, idx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list golden samples", "details": err.Error()})
			return
		}
		for _, cand := range candidates {
			out = append(out, goldenSampleView{
				ROIIdx:   idx,
				Filename: filepath.Base(cand.Path),
				IsBest:   cand.IsBest,
				ModTime:  cand.ModTime.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"product_id": product, "samples": out})
}

// loadROIConfig reads config/products/<product>/rois_config_<product>.json
// from PRODUCTS_ROOT (spec.md §6's filesystem layout) and returns both the
// raw bytes (forwarded to the Orchestrator, which normalizes them itself)
// and the full set of idx values, for the single-image route's "all ROIs"
// group.
func loadROIConfig(product string) (json.RawMessage, []int, error) {
	path := filepath.Join(configs.PRODUCTS_ROOT, product, fmt.Sprintf("rois_config_%s.json", product))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", common.ErrSourceNotFound, path)
		}
		return nil, nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnreadable, path, err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", common.ErrConfigInvalid, path, err)
	}

	idx := make([]int, 0, len(raws))
	for _, r := range raws {
		// object-form records carry idx as a keyed field; tuple-form records
		// carry it positionally as element 0 - try both, same dual-shape
		// tolerance roi.Normalize applies to the full record.
		var obj struct {
			Idx int `json:"idx"`
		}
		if json.Unmarshal(r, &obj) == nil && obj.Idx != 0 {
			idx = append(idx, obj.Idx)
			continue
		}
		var tuple []json.RawMessage
		if json.Unmarshal(r, &tuple) == nil && len(tuple) > 0 {
			var first int
			if json.Unmarshal(tuple[0], &first) == nil {
				idx = append(idx, first)
			}
		}
	}

	return json.RawMessage(raw), idx, nil
}

// statusFor maps the typed error taxonomy (spec.md §7) to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, common.ErrSessionUnknown), errors.Is(err, common.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrSourceUnreadable), errors.Is(err, common.ErrSourceMalformed), errors.Is(err, common.ErrConfigInvalid):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrTimeout):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
