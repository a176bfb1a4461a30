package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/datatypes"
)

// ItemStatus is the outcome of one (card, variant) pair in a batch run.
type ItemStatus string

// Item outcomes.
const (
	ItemSuccessful ItemStatus = "successful"
	ItemSkipped    ItemStatus = "skipped"
	ItemFailed     ItemStatus = "failed"
)

// ReasonCardNotFound marks items that failed because the card does not
// exist. The worker treats an all-not-found summary as non-retryable.
const ReasonCardNotFound = "card not found"

// ItemResult is the per-pair detail line of a batch summary. Reason is set
// for failed items with a human-readable cause.
type ItemResult struct {
	CardID   uuid.UUID         `json:"card_id"`
	Variant  datatypes.Variant `json:"variant"`
	Status   ItemStatus        `json:"status"`
	Reason   string            `json:"reason,omitempty"`
	Duration time.Duration     `json:"duration_ns,omitempty"`
}

// BatchSummary reports the result of a batch embedding run.
// Successful + Failed + Skipped always equals the number of requested
// (card, variant) pairs, including when the run is cancelled mid-batch.
type BatchSummary struct {
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Items      []ItemResult `json:"items"`
}

// Total returns the number of pairs accounted for in the summary.
func (s *BatchSummary) Total() int {
	return s.Successful + s.Failed + s.Skipped
}
