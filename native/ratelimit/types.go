package ratelimit

import "errors"

// Tier is the verification level that keys an entity's ceilings.
type Tier uint8

const (
	TierBasic Tier = iota
	TierStaked
	TierSocial
	TierKYC
)

// Valid reports whether the tier is within the supported range.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierStaked, TierSocial, TierKYC:
		return true
	default:
		return false
	}
}

func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "basic"
	case TierStaked:
		return "staked"
	case TierSocial:
		return "social"
	case TierKYC:
		return "kyc"
	default:
		return "unknown"
	}
}

// Limits holds the fixed transaction and dispute ceilings for one tier.
type Limits struct {
	PerHour        uint16
	PerDay         uint16
	DisputesPerDay uint16
}

// TierLimits returns the fixed ceiling triple for a verification tier.
func TierLimits(t Tier) Limits {
	switch t {
	case TierStaked:
		return Limits{PerHour: 10, PerDay: 100, DisputesPerDay: 10}
	case TierSocial:
		return Limits{PerHour: 50, PerDay: 500, DisputesPerDay: 50}
	case TierKYC:
		return Limits{PerHour: 1000, PerDay: 10000, DisputesPerDay: 1000}
	default:
		return Limits{PerHour: 1, PerDay: 10, DisputesPerDay: 3}
	}
}

// RateLimiter holds one entity's rolling counters. Counters are reset lazily:
// whenever the current hour or day bucket has advanced past the stored
// marker, the relevant counters zero before the check.
type RateLimiter struct {
	Entity          [20]byte `json:"entity"`
	Tier            Tier     `json:"tier"`
	TxLastHour      uint16   `json:"txLastHour"`
	TxLastDay       uint16   `json:"txLastDay"`
	DisputesLastDay uint16   `json:"disputesLastDay"`
	LastHourBucket  int64    `json:"lastHourBucket"`
	LastDayBucket   int64    `json:"lastDayBucket"`
}

// Clone returns a copy safe for caller mutation.
func (r *RateLimiter) Clone() *RateLimiter {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

var (
	// ErrRateLimitExceeded marks an operation attempted past a ceiling.
	ErrRateLimitExceeded = errors.New("ratelimit: limit exceeded")
	// ErrInvalidTier rejects tier values outside the supported range.
	ErrInvalidTier = errors.New("ratelimit: invalid verification tier")
	// ErrNotConfigured marks an engine without a state backend.
	ErrNotConfigured = errors.New("ratelimit: engine state not configured")
)
