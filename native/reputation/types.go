package reputation

import "errors"

// Role tags which side of a transaction an entity plays.
type Role uint8

const (
	RoleAgent Role = iota
	RoleProvider
)

func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// EntityReputation accumulates one participant's historical statistics. The
// derived score is always recomputed from the counters, never adjusted
// incrementally, so identical counters always yield an identical score.
type EntityReputation struct {
	Entity            [20]byte `json:"entity"`
	Role              Role     `json:"role"`
	TotalTransactions uint64   `json:"totalTransactions"`
	DisputesFiled     uint64   `json:"disputesFiled"`
	DisputesWon       uint64   `json:"disputesWon"`
	DisputesPartial   uint64   `json:"disputesPartial"`
	DisputesLost      uint64   `json:"disputesLost"`
	AverageQuality    uint8    `json:"averageQuality"`
	Score             uint16   `json:"score"`
	CreatedAt         int64    `json:"createdAt"`
	LastUpdated       int64    `json:"lastUpdated"`
}

// Clone returns a copy safe for caller mutation.
func (r *EntityReputation) Clone() *EntityReputation {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

var (
	// ErrNilReputation marks operations against a missing record where lazy
	// initialisation is not permitted.
	ErrNilReputation = errors.New("reputation: record nil")
	// ErrAlreadyInitialized rejects double bootstraps of the same entity.
	ErrAlreadyInitialized = errors.New("reputation: record already initialised")
	// ErrNotConfigured marks an engine without a state backend.
	ErrNotConfigured = errors.New("reputation: engine state not configured")
)
