// Package models provides data model definitions for the opsync engine.
package models

// SyncRunResult summarizes one processing pass over the pending queue.
type SyncRunResult struct {
	Success int `json:"success"` // dispatched and confirmed, removed from the queue
	Failed  int `json:"failed"`  // failed this pass, still queued for retry (or held)
	Skipped int `json:"skipped"` // abandoned, removed without remote confirmation
}

// Total returns the number of items the run touched.
func (r *SyncRunResult) Total() int {
	return r.Success + r.Failed + r.Skipped
}
