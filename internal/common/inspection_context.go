// inspection_context.go - per-inspection tracking and logging.
//
// Generalized from a receipt-processing request tracker: instead of OCR/accounting
// phases this tracks session resolve / image decode / roi group / promotion steps.

package common

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// InspectionContext tracks one inspection call's lifecycle with step timing.
type InspectionContext struct {
	InspectionID string
	SessionID    string
	ProductID    string
	StartTime    time.Time
	Steps        []StepLog

	currentStep      string
	currentStepStart time.Time
}

// StepLog represents a single processing step (one image group, one ROI batch, ...).
type StepLog struct {
	Name     string
	Duration time.Duration
	Status   string // "success", "failed", "skipped"
	Error    string
}

// NewInspectionContext creates a new inspection tracking context.
func NewInspectionContext(sessionID, productID string) *InspectionContext {
	now := time.Now()
	id := uuid.New().String()
	log.Printf("[%s] ▶ inspection start | session=%s product=%s", id, sessionID, productID)
	return &InspectionContext{
		InspectionID: id,
		SessionID:    sessionID,
		ProductID:    productID,
		StartTime:    now,
	}
}

// StartStep begins tracking a new processing step.
func (ic *InspectionContext) StartStep(name string) {
	ic.currentStep = name
	ic.currentStepStart = time.Now()
	log.Printf("[%s] ├── %s", ic.InspectionID, name)
}

// EndStep completes the current step and records its timing.
func (ic *InspectionContext) EndStep(status string, err error) {
	duration := time.Since(ic.currentStepStart)
	step := StepLog{Name: ic.currentStep, Duration: duration, Status: status}
	if err != nil {
		step.Error = err.Error()
		log.Printf("[%s] │   ✗ %s (%s) - %v", ic.InspectionID, ic.currentStep, duration, err)
	} else {
		log.Printf("[%s] │   ✓ %s (%s)", ic.InspectionID, ic.currentStep, duration)
	}
	ic.Steps = append(ic.Steps, step)
	ic.currentStep = ""
}

// LogInfo logs an info-level message tagged with the inspection id.
func (ic *InspectionContext) LogInfo(format string, args ...interface{}) {
	log.Printf("[%s] %s", ic.InspectionID, fmt.Sprintf(format, args...))
}

// LogWarning logs a warning-level message tagged with the inspection id.
func (ic *InspectionContext) LogWarning(format string, args ...interface{}) {
	log.Printf("[%s] ⚠ %s", ic.InspectionID, fmt.Sprintf(format, args...))
}

// LogError logs an error-level message tagged with the inspection id.
func (ic *InspectionContext) LogError(format string, args ...interface{}) {
	log.Printf("[%s] ✗ %s", ic.InspectionID, fmt.Sprintf(format, args...))
}

// Elapsed returns the total duration since the inspection started.
func (ic *InspectionContext) Elapsed() time.Duration {
	return time.Since(ic.StartTime)
}

// Summary logs a short completion line, mirroring the teacher's
// end-of-request summary but scoped to step count and elapsed time only.
func (ic *InspectionContext) Summary(passed bool) {
	log.Printf("[%s] ■ inspection done | passed=%v steps=%d elapsed=%s",
		ic.InspectionID, passed, len(ic.Steps), ic.Elapsed())
}
