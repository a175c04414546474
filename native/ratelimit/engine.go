package ratelimit

import "time"

const (
	hourSeconds = 3600
	daySeconds  = 86400
)

type engineState interface {
	RateLimiterGet(entity [20]byte) (*RateLimiter, bool, error)
	RateLimiterPut(*RateLimiter) error
}

// Engine enforces per-entity transaction and dispute ceilings keyed by the
// entity's verification tier. All timing is data: the engine compares bucket
// indices derived from the supplied clock, there are no background timers.
type Engine struct {
	state engineState
	nowFn func() int64
}

// NewEngine creates a rate limiting engine.
func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source, primarily for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// load returns the stored limiter, or a fresh Basic-tier record positioned at
// the current buckets when the entity has never been checked.
func (e *Engine) load(entity [20]byte, now int64) (*RateLimiter, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	rec, ok, err := e.state.RateLimiterGet(entity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RateLimiter{
			Entity:         entity,
			Tier:           TierBasic,
			LastHourBucket: now / hourSeconds,
			LastDayBucket:  now / daySeconds,
		}, nil
	}
	return rec, nil
}

// rollover applies the lazy reset: counters zero exactly once when the
// current bucket advances past the stored marker.
func (r *RateLimiter) rollover(now int64) {
	currentHour := now / hourSeconds
	currentDay := now / daySeconds
	if currentHour > r.LastHourBucket {
		r.TxLastHour = 0
		r.LastHourBucket = currentHour
	}
	if currentDay > r.LastDayBucket {
		r.TxLastDay = 0
		r.DisputesLastDay = 0
		r.LastDayBucket = currentDay
	}
}

// CheckTransaction fails with ErrRateLimitExceeded when either the hourly or
// daily transaction ceiling is already met. Nothing is persisted; callers
// consume the slot with RecordTransaction once the guarded operation has
// succeeded, so a rejected operation leaves the counters untouched.
func (e *Engine) CheckTransaction(entity [20]byte) error {
	now := e.nowFn()
	rec, err := e.load(entity, now)
	if err != nil {
		return err
	}
	rec.rollover(now)
	limits := TierLimits(rec.Tier)
	if rec.TxLastHour >= limits.PerHour || rec.TxLastDay >= limits.PerDay {
		return ErrRateLimitExceeded
	}
	return nil
}

// RecordTransaction consumes one transaction slot for the entity.
func (e *Engine) RecordTransaction(entity [20]byte) error {
	now := e.nowFn()
	rec, err := e.load(entity, now)
	if err != nil {
		return err
	}
	rec.rollover(now)
	rec.TxLastHour++
	rec.TxLastDay++
	return e.state.RateLimiterPut(rec)
}

// CheckDispute fails with ErrRateLimitExceeded when the daily dispute ceiling
// is already met. Nothing is persisted; callers consume the slot with
// RecordDispute once the guarded operation has succeeded.
func (e *Engine) CheckDispute(entity [20]byte) error {
	now := e.nowFn()
	rec, err := e.load(entity, now)
	if err != nil {
		return err
	}
	rec.rollover(now)
	limits := TierLimits(rec.Tier)
	if rec.DisputesLastDay >= limits.DisputesPerDay {
		return ErrRateLimitExceeded
	}
	return nil
}

// RecordDispute consumes one dispute slot for the entity.
func (e *Engine) RecordDispute(entity [20]byte) error {
	now := e.nowFn()
	rec, err := e.load(entity, now)
	if err != nil {
		return err
	}
	rec.rollover(now)
	rec.DisputesLastDay++
	return e.state.RateLimiterPut(rec)
}

// SetTier records the verification tier an entity has attained. Counters and
// bucket markers are preserved.
func (e *Engine) SetTier(entity [20]byte, tier Tier) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	now := e.nowFn()
	rec, err := e.load(entity, now)
	if err != nil {
		return err
	}
	rec.Tier = tier
	return e.state.RateLimiterPut(rec)
}

// Get returns the stored limiter state for an entity.
func (e *Engine) Get(entity [20]byte) (*RateLimiter, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNotConfigured
	}
	rec, ok, err := e.state.RateLimiterGet(entity)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Clone(), true, nil
}
