package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/visualaoi/inspector/configs"
	"github.com/visualaoi/inspector/internal/golden"
	"github.com/visualaoi/inspector/internal/session"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	sharedRoot := t.TempDir()
	productsRoot := t.TempDir()
	return &Server{
		Sessions: session.NewManager(sharedRoot),
		Golden:   golden.NewStore(productsRoot),
	}, productsRoot
}

func TestCreateAndDestroySession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _ := newTestServer(t)
	router := gin.New()
	router.POST("/sessions", s.CreateSession)
	router.DELETE("/sessions/:id", s.DestroySession)

	body, _ := json.Marshal(CreateSessionRequest{ProductID: "widget-a", ClientInfo: "line-3"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("create session: want 200, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected non-empty session_id")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/sessions/"+created.SessionID, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("destroy session: want 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDestroyUnknownSessionReturns404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _ := newTestServer(t)
	router := gin.New()
	router.DELETE("/sessions/:id", s.DestroySession)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/sessions/does-not-exist", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404 for unknown session, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListGoldenEmptyProduct(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _ := newTestServer(t)
	router := gin.New()
	router.GET("/products/:id/golden", s.ListGolden)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/products/widget-a/golden", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 for product with no golden samples yet, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		ProductID string             `json:"product_id"`
		Samples   []goldenSampleView `json:"samples"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(out.Samples))
	}
}

func TestDeviceBarcodesDTOAcceptsObjectAndListForms(t *testing.T) {
	var objForm deviceBarcodesDTO
	if err := json.Unmarshal([]byte(`{"1":"ABC123","2":"XYZ999"}`), &objForm); err != nil {
		t.Fatalf("unmarshal object form: %v", err)
	}
	got := objForm.toMap()
	if got[1] != "ABC123" || got[2] != "XYZ999" {
		t.Fatalf("object form: unexpected map %#v", got)
	}

	var listForm deviceBarcodesDTO
	if err := json.Unmarshal([]byte(`[{"device_id":1,"barcode":"ABC123"},{"device_id":2,"barcode":"XYZ999"}]`), &listForm); err != nil {
		t.Fatalf("unmarshal list form: %v", err)
	}
	got = listForm.toMap()
	if got[1] != "ABC123" || got[2] != "XYZ999" {
		t.Fatalf("list form: unexpected map %#v", got)
	}
}

func TestLoadROIConfigObjectAndTupleForms(t *testing.T) {
	productsRoot := t.TempDir()
	oldRoot := configs.PRODUCTS_ROOT
	configs.PRODUCTS_ROOT = productsRoot
	defer func() { configs.PRODUCTS_ROOT = oldRoot }()

	dir := filepath.Join(productsRoot, "widget-a")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg := `[{"idx":1,"type":3},[2,2]]`
	if err := os.WriteFile(filepath.Join(dir, "rois_config_widget-a.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	raw, idx, err := loadROIConfig("widget-a")
	if err != nil {
		t.Fatalf("loadROIConfig: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty raw config")
	}
	if len(idx) != 2 || idx[0] != 1 || idx[1] != 2 {
		t.Fatalf("expected idx [1 2], got %v", idx)
	}
}

func TestLoadROIConfigMissingProductReturnsNotFound(t *testing.T) {
	productsRoot := t.TempDir()
	oldRoot := configs.PRODUCTS_ROOT
	configs.PRODUCTS_ROOT = productsRoot
	defer func() { configs.PRODUCTS_ROOT = oldRoot }()

	_, _, err := loadROIConfig("ghost-product")
	if err == nil {
		t.Fatal("expected error for missing roi config")
	}
	if statusFor(err) != http.StatusNotFound {
		t.Fatalf("want 404 for missing roi config, got %d", statusFor(err))
	}
}
