package reputation

import (
	"math/big"
	"time"

	"x402resolve/core/events"
	"x402resolve/core/types"
)

type engineState interface {
	ReputationGet(entity [20]byte) (*EntityReputation, bool, error)
	ReputationPut(*EntityReputation) error
}

type reputationEvent struct {
	evt *types.Event
}

func (e reputationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e reputationEvent) Event() *types.Event { return e.evt }

// Engine maintains per-entity reputation records and derives the dispute
// filing cost consumed by the escrow engine.
type Engine struct {
	state           engineState
	emitter         events.Emitter
	nowFn           func() int64
	baseDisputeCost *big.Int
}

// NewEngine creates a reputation engine with a no-op emitter and the supplied
// base dispute cost (smallest currency unit).
func NewEngine(baseDisputeCost *big.Int) *Engine {
	cost := big.NewInt(0)
	if baseDisputeCost != nil {
		cost = new(big.Int).Set(baseDisputeCost)
	}
	return &Engine{
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
		baseDisputeCost: cost,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(reputationEvent{evt: evt})
}

// Initialize bootstraps a fresh record at the neutral score. Double
// initialisation is rejected.
func (e *Engine) Initialize(entity [20]byte, role Role) (*EntityReputation, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	if _, ok, err := e.state.ReputationGet(entity); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	now := e.nowFn()
	rec := &EntityReputation{
		Entity:      entity,
		Role:        role,
		Score:       BaseScore,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := e.state.ReputationPut(rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Get fetches the stored record for an entity.
func (e *Engine) Get(entity [20]byte) (*EntityReputation, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNotConfigured
	}
	rec, ok, err := e.state.ReputationGet(entity)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Clone(), true, nil
}

// load returns the stored record or a fresh neutral one when the entity has
// no history yet. Records created lazily here carry the supplied role.
func (e *Engine) load(entity [20]byte, role Role) (*EntityReputation, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	rec, ok, err := e.state.ReputationGet(entity)
	if err != nil {
		return nil, err
	}
	if !ok {
		now := e.nowFn()
		return &EntityReputation{
			Entity:      entity,
			Role:        role,
			Score:       BaseScore,
			CreatedAt:   now,
			LastUpdated: now,
		}, nil
	}
	return rec, nil
}

// DisputeCost derives the filing cost for an entity from its historical
// dispute rate. Entities without history pay the base cost.
func (e *Engine) DisputeCost(entity [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotConfigured
	}
	rec, _, err := e.state.ReputationGet(entity)
	if err != nil {
		return nil, err
	}
	multiplier := DisputeCostMultiplier(rec)
	return new(big.Int).Mul(e.baseDisputeCost, new(big.Int).SetUint64(multiplier)), nil
}

// RecordDisputeFiled increments the filed-dispute counter when an escrow is
// marked disputed.
func (e *Engine) RecordDisputeFiled(entity [20]byte) error {
	rec, err := e.load(entity, RoleAgent)
	if err != nil {
		return err
	}
	rec.DisputesFiled++
	rec.LastUpdated = e.nowFn()
	return e.state.ReputationPut(rec)
}

// ApplyResolution folds one dispute outcome into both parties' records. The
// agent's perceived quality is the raw score; the provider's is the inverse
// of the refund percentage (quality delivered).
func (e *Engine) ApplyResolution(agent, provider [20]byte, qualityScore, refundPercentage uint8) error {
	agentRec, err := e.load(agent, RoleAgent)
	if err != nil {
		return err
	}
	providerRec, err := e.load(provider, RoleProvider)
	if err != nil {
		return err
	}
	now := e.nowFn()

	agentRec.applyOutcome(qualityScore, refundPercentage, RoleAgent)
	agentRec.LastUpdated = now

	providerRec.applyOutcome(100-refundPercentage, refundPercentage, RoleProvider)
	providerRec.LastUpdated = now

	if err := e.state.ReputationPut(agentRec); err != nil {
		return err
	}
	if err := e.state.ReputationPut(providerRec); err != nil {
		return err
	}
	e.emit(NewReputationUpdatedEvent(agentRec))
	e.emit(NewReputationUpdatedEvent(providerRec))
	return nil
}
