// Package conflict decides the fate of a local mutation when the remote
// reports a divergent version of the same record.
package conflict

import (
	"encoding/json"
	"reflect"

	"github.com/kimhsiao/opsync/internal/models"
)

// Outcome is the resolver's verdict for one conflicting operation.
type Outcome string

const (
	// OutcomeReplay resends the local payload unchanged.
	OutcomeReplay Outcome = "replay_as_is"
	// OutcomeHold parks the operation for manual review; it is excluded
	// from automatic retries until requeued explicitly.
	OutcomeHold Outcome = "hold_for_review"
	// OutcomeMerged resends a payload merged field-by-field from both sides.
	OutcomeMerged Outcome = "merged_payload"
	// OutcomeAbandon drops the local mutation; the remote state stands.
	OutcomeAbandon Outcome = "abandon"
)

// Decision is the result of resolving one conflict. Merged is set only
// when Outcome is OutcomeMerged.
type Decision struct {
	Policy  models.ConflictPolicy
	Outcome Outcome
	Merged  json.RawMessage
}

// Resolve applies the declared policy to a (local, remote) pair and
// returns the decision. It has no side effects.
//
//   - last_write_wins: replay as-is; the remote's own ordering governs
//     final state, so no timestamps are consulted here.
//   - source_priority: abandon; the external source of truth wins.
//   - manual_review: hold for out-of-band resolution.
//   - merge: field-by-field union; an ambiguous overlap falls back to hold.
func Resolve(policy models.ConflictPolicy, local, remote json.RawMessage) (*Decision, error) {
	switch policy {
	case models.PolicyLastWriteWins:
		return &Decision{Policy: policy, Outcome: OutcomeReplay}, nil
	case models.PolicySourcePriority:
		return &Decision{Policy: policy, Outcome: OutcomeAbandon}, nil
	case models.PolicyManualReview:
		return &Decision{Policy: policy, Outcome: OutcomeHold}, nil
	case models.PolicyMerge:
		return resolveMerge(local, remote)
	default:
		return nil, ErrUnknownPolicy
	}
}

// resolveMerge unions local and remote objects. Remote values win for
// fields the local mutation never touched; local values win for fields
// only it carries. If both sides carry the same field with different
// values the merge is ambiguous and the operation is held instead.
func resolveMerge(local, remote json.RawMessage) (*Decision, error) {
	localFields, err := decodeObject(local)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	remoteFields, err := decodeObject(remote)
	if err != nil {
		return nil, ErrInvalidPayload
	}

	merged := make(map[string]interface{}, len(localFields)+len(remoteFields))
	for k, v := range remoteFields {
		merged[k] = v
	}
	for k, localVal := range localFields {
		if remoteVal, both := remoteFields[k]; both && !reflect.DeepEqual(localVal, remoteVal) {
			// Ambiguous merges are never auto-resolved.
			return &Decision{Policy: models.PolicyMerge, Outcome: OutcomeHold}, nil
		}
		merged[k] = localVal
	}

	body, err := json.Marshal(merged)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	return &Decision{Policy: models.PolicyMerge, Outcome: OutcomeMerged, Merged: body}, nil
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Errors
var (
	ErrUnknownPolicy  = &ResolveError{Message: "unknown conflict policy"}
	ErrInvalidPayload = &ResolveError{Message: "payload is not a JSON object"}
)

// ResolveError represents a conflict resolution error.
type ResolveError struct {
	Message string
}

func (e *ResolveError) Error() string {
	return e.Message
}

// IsResolveError checks if an error is a ResolveError.
func IsResolveError(err error) bool {
	_, ok := err.(*ResolveError)
	return ok
}
