package reputation

import (
	"encoding/hex"
	"strconv"

	"x402resolve/core/types"
)

// EventTypeReputationUpdated is emitted after a resolution touches an
// entity's record.
const EventTypeReputationUpdated = "reputation.updated"

// NewReputationUpdatedEvent returns the canonical payload for a reputation
// change.
func NewReputationUpdatedEvent(r *EntityReputation) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypeReputationUpdated, Attributes: attrs}
	}
	attrs["entity"] = hex.EncodeToString(r.Entity[:])
	attrs["role"] = r.Role.String()
	attrs["score"] = strconv.FormatUint(uint64(r.Score), 10)
	attrs["totalTransactions"] = strconv.FormatUint(r.TotalTransactions, 10)
	attrs["averageQuality"] = strconv.FormatUint(uint64(r.AverageQuality), 10)
	return &types.Event{Type: EventTypeReputationUpdated, Attributes: attrs}
}
