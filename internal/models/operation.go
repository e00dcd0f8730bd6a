// Package models provides data model definitions for the opsync engine.
package models

import (
	"encoding/json"
	"time"
)

// UUID represents a UUID v4 string.
type UUID string

// Action identifies the kind of mutation a pending operation carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsValid reports whether the action is one of the known kinds.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Priority orders pending operations; lower values drain first.
// Any integer is accepted, the named tiers are the standing defaults.
type Priority int

const (
	PriorityCritical Priority = 1 // approvals, payments
	PriorityHigh     Priority = 2 // invoices, projects
	PriorityMedium   Priority = 3 // inventory
	PriorityLow      Priority = 4 // settings
)

// OperationStatus tracks whether an operation participates in automatic
// processing or is parked for out-of-band resolution.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusHeld    OperationStatus = "held" // awaiting manual review
)

// PendingOperation represents one durable mutation awaiting remote
// application. Payload and target identity are fixed at enqueue time;
// only the retry bookkeeping fields and Status change afterwards.
type PendingOperation struct {
	ID          UUID            `db:"id" json:"id"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    string          `db:"entity_id" json:"entity_id"`
	Action      Action          `db:"action" json:"action"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Endpoint    string          `db:"endpoint" json:"endpoint"`
	Method      string          `db:"method" json:"method"`
	Priority    Priority        `db:"priority" json:"priority"`
	Policy      ConflictPolicy  `db:"policy" json:"policy"`
	Status      OperationStatus `db:"status" json:"status"`
	EnqueuedAt  int64           `db:"enqueued_at" json:"enqueued_at"` // unix nanoseconds
	Retries     int             `db:"retries" json:"retries"`
	MaxRetries  int             `db:"max_retries" json:"max_retries"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	LastRetryAt int64           `db:"last_retry_at" json:"last_retry_at,omitempty"`
}

// TableName returns the collection name for PendingOperation.
func (PendingOperation) TableName() string {
	return "pending_operations"
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (op *PendingOperation) EnqueuedAtTime() time.Time {
	return time.Unix(0, op.EnqueuedAt)
}

// ConflictPolicy declares how a version conflict reported by the remote
// is reconciled before an operation may be replayed.
type ConflictPolicy string

const (
	PolicyLastWriteWins  ConflictPolicy = "last_write_wins"
	PolicySourcePriority ConflictPolicy = "source_priority"
	PolicyManualReview   ConflictPolicy = "manual_review"
	PolicyMerge          ConflictPolicy = "merge"
)

// IsValid reports whether the policy is one of the known strategies.
func (p ConflictPolicy) IsValid() bool {
	switch p {
	case PolicyLastWriteWins, PolicySourcePriority, PolicyManualReview, PolicyMerge:
		return true
	}
	return false
}
