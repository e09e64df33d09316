// audit.go - Inspection Audit Trail (C14), an [EXPANSION] component:
// best-effort MongoDB log of inspections and promotions, never a functional
// dependency of C7/C11 (SPEC_FULL.md §2). Collection document shapes are
// original to this domain; insertion plumbing (bson.M construction,
// context.WithTimeout-guarded calls) is grounded on the teacher's
// mongodb.go query functions.
package storage

import (
	"context"
	"log"
	"time"
)

// InspectionAuditEntry is one row written to the inspection_audit collection.
type InspectionAuditEntry struct {
	InspectionID   string    `bson:"inspection_id"`
	SessionID      string    `bson:"session_id"`
	ProductID      string    `bson:"product_id"`
	Passed         bool      `bson:"passed"`
	TotalROIs      int       `bson:"total_rois"`
	PassedROIs     int       `bson:"passed_rois"`
	ProcessingTime float64   `bson:"processing_time_seconds"`
	RecordedAt     time.Time `bson:"recorded_at"`
}

// PromotionAuditEntry is one row written to the promotion_audit collection.
type PromotionAuditEntry struct {
	ProductID  string    `bson:"product_id"`
	ROIIdx     int       `bson:"roi_idx"`
	Similarity float64   `bson:"similarity"`
	Threshold  float64   `bson:"threshold"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// RecordInspection writes an inspection summary, best-effort. A nil/absent
// database (audit disabled, or Mongo unreachable at startup) is a silent
// no-op - the audit trail is never a functional dependency of the matcher.
func RecordInspection(entry InspectionAuditEntry) {
	db := GetMongoDB()
	if db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.Collection("inspection_audit").InsertOne(ctx, entry); err != nil {
		log.Printf("[audit] failed to record inspection %s: %v", entry.InspectionID, err)
	}
}

// RecordPromotion writes a promotion event, best-effort.
func RecordPromotion(entry PromotionAuditEntry) {
	db := GetMongoDB()
	if db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.Collection("promotion_audit").InsertOne(ctx, entry); err != nil {
		log.Printf("[audit] failed to record promotion product=%s roi=%d: %v", entry.ProductID, entry.ROIIdx, err)
	}
}
