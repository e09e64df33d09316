package runner

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/visualaoi/inspector/internal/capability"
	"github.com/visualaoi/inspector/internal/executor"
	"github.com/visualaoi/inspector/internal/roi"
)

type neverFoundBarcode struct{}

func (neverFoundBarcode) Decode(img image.Image) ([]string, error) { return []string{}, nil }

func solidFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 200, 200))
}

func TestRunOrdersResultsByIdxRegardlessOfCompletionOrder(t *testing.T) {
	recs := []*roi.Record{
		{Idx: 9, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
		{Idx: 2, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
		{Idx: 5, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
		{Idx: 1, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
	}
	deps := executor.Deps{Barcode: jitteryBarcode{}}

	results := Run(context.Background(), recs, solidFrame(), deps, t.TempDir(), 4)

	want := []int{1, 2, 5, 9}
	for i, r := range results {
		if r.Idx != want[i] {
			t.Fatalf("position %d: expected idx %d, got %d (full: %+v)", i, want[i], r.Idx, results)
		}
	}
}

// jitteryBarcode sleeps a random short duration so goroutines complete out
// of submission order, exercising the sort in Run.
type jitteryBarcode struct{}

func (jitteryBarcode) Decode(img image.Image) ([]string, error) {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	return []string{}, nil
}

func TestRunRespectsWorkerPoolCap(t *testing.T) {
	var recs []*roi.Record
	for i := 1; i <= 20; i++ {
		recs = append(recs, &roi.Record{Idx: i, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1})
	}
	tracker := &concurrencyTracker{cap: 3}
	deps := executor.Deps{Barcode: tracker}

	Run(context.Background(), recs, solidFrame(), deps, t.TempDir(), 3)

	if tracker.maxObserved > 3 {
		t.Fatalf("expected at most 3 concurrent tasks, observed %d", tracker.maxObserved)
	}
}

type concurrencyTracker struct {
	cap         int
	current     int
	maxObserved int
	mu          sync.Mutex
}

func (t *concurrencyTracker) Decode(img image.Image) ([]string, error) {
	t.mu.Lock()
	t.current++
	if t.current > t.maxObserved {
		t.maxObserved = t.current
	}
	t.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	t.mu.Lock()
	t.current--
	t.mu.Unlock()
	return []string{}, nil
}

func TestRunCancelledContextMarksOutstandingTasksTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs := []*roi.Record{
		{Idx: 1, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
	}
	deps := executor.Deps{Barcode: neverFoundBarcode{}}

	results := Run(ctx, recs, solidFrame(), deps, t.TempDir(), 1)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", results[0].Err)
	}
}

// panickyBarcode simulates an adapter panic (e.g. a malformed frame tripping
// up gozxing or the image package) mid-decode.
type panickyBarcode struct{}

func (panickyBarcode) Decode(img image.Image) ([]string, error) {
	panic("simulated adapter panic")
}

func TestRunRecoversPanicInOneTaskWithoutCrashing(t *testing.T) {
	recs := []*roi.Record{
		{Idx: 1, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
		{Idx: 2, Type: roi.Barcode, Coords: roi.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, DeviceLocation: 1},
	}
	deps := executor.Deps{Barcode: panickyBarcode{}}

	results := Run(context.Background(), recs, solidFrame(), deps, t.TempDir(), 2)

	if len(results) != 2 {
		t.Fatalf("expected 2 results despite the panic, got %d", len(results))
	}
	for _, r := range results {
		if r.Err == nil {
			t.Fatalf("expected a ROITaskFailed error for idx %d, got none", r.Idx)
		}
		if r.Passed {
			t.Fatalf("expected idx %d to be marked failed, not passed", r.Idx)
		}
	}
}

var _ capability.BarcodeDecoder = neverFoundBarcode{}
