// errors.go - typed error taxonomy shared across the inspection pipeline.
//
// The typed failures of the core are these values, returned directly or
// wrapped with fmt.Errorf("...: %w", err); other errors (for example an
// executor's own input checks) are plain wrapped errors without a sentinel.
// None of them is raised as a panic. See SPEC_FULL.md §7.

package common

import "errors"

var (
	// Image Source Resolver (C4)
	ErrSourceNotFound  = errors.New("source not found")
	ErrSourceUnreadable = errors.New("source unreadable")
	ErrSourceMalformed = errors.New("source malformed")

	// Session Manager (C10)
	ErrSessionUnknown = errors.New("session unknown")

	// ROI Normalizer (C5)
	ErrConfigInvalid = errors.New("roi config invalid")

	// Parallel ROI Runner (C8)
	ErrROITaskFailed = errors.New("roi task failed")
	ErrTimeout       = errors.New("deadline exceeded")

	// Golden Matcher & Promotion Engine (C7)
	ErrPromotionFailed = errors.New("golden promotion failed")

	// Barcode Resolution Ladder (C9) / Barcode Linking Client (C3)
	ErrLinkUnavailable = errors.New("barcode link unavailable")
)
