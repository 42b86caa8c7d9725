// Package workitems persists returns-processing work items in DynamoDB. A
// work item is created when a returned unit's paperwork is photographed at
// the dock; the pipeline picks it up, runs extraction, and writes the
// processing result back onto the same item.
//
// Records use a single-table layout: partition key WORKITEM#{id}, sort key
// META. Get methods return (nil, nil) when the item does not exist.
package workitems

import (
	"context"
	"time"
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusLowConfidence Status = "low_confidence"
	StatusFailed        Status = "failed"
)

// WorkItem is one unit of returns paperwork awaiting extraction.
type WorkItem struct {
	ID          string    `dynamodbav:"workItemId" json:"workItemId"`
	DocumentKey string    `dynamodbav:"documentKey" json:"documentKey"`
	Filename    string    `dynamodbav:"filename" json:"filename"`
	ContentType string    `dynamodbav:"contentType" json:"contentType"`
	Status      Status    `dynamodbav:"status" json:"status"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// ProcessingResult is the pipeline outcome written back onto a work item.
// Pointer fields are omitted from the update when nil.
type ProcessingResult struct {
	WorkItemID      string    `dynamodbav:"-" json:"workItemId"`
	CorrelationID   string    `dynamodbav:"correlationId" json:"correlationId"`
	Serial          *string   `dynamodbav:"serial,omitempty" json:"serial,omitempty"`
	ConfidenceScore float64   `dynamodbav:"confidenceScore" json:"confidenceScore"`
	SKU             *string   `dynamodbav:"sku,omitempty" json:"sku,omitempty"`
	Family          *string   `dynamodbav:"family,omitempty" json:"family,omitempty"`
	Status          Status    `dynamodbav:"status" json:"status"`
	ErrorMessage    *string   `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	ProcessedAt     time.Time `dynamodbav:"processedAt" json:"processedAt"`
}

// Store is the persistence interface for work items. Implementations must be
// safe for concurrent use.
type Store interface {
	// GetWorkItem retrieves a work item by id. Returns nil, nil if absent.
	GetWorkItem(ctx context.Context, id string) (*WorkItem, error)

	// PutWorkItem creates or replaces a work item record.
	PutWorkItem(ctx context.Context, item *WorkItem) error

	// SetStatus updates only the status field of a work item.
	SetStatus(ctx context.Context, id string, status Status) error

	// WriteResult merges a processing result onto the work item, updating
	// its status and result fields without touching intake metadata.
	WriteResult(ctx context.Context, result *ProcessingResult) error
}
