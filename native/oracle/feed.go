package oracle

import "math/big"

// MaxFeedAgeSeconds is the freshness window for feed attestations.
const MaxFeedAgeSeconds = 300

// FeedRecord mirrors the latest result published by a pull-feed oracle: the
// reported value and the timestamp of its last update.
type FeedRecord struct {
	Feed      [32]byte `json:"feed"`
	Value     *big.Int `json:"value"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Verify checks the record against the submitted quality score: the update
// must sit inside the freshness window relative to now, and the embedded
// value must equal the submitted score exactly.
func (f *FeedRecord) Verify(now int64, qualityScore uint8) error {
	if f == nil || f.Value == nil {
		return ErrInvalidAttestation
	}
	age := now - f.UpdatedAt
	if age < 0 || age > MaxFeedAgeSeconds {
		return ErrStaleAttestation
	}
	if f.Value.Cmp(big.NewInt(int64(qualityScore))) != 0 {
		return ErrQualityScoreMismatch
	}
	return nil
}
