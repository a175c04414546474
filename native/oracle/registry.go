package oracle

import (
	"time"

	"x402resolve/core/events"
	"x402resolve/core/types"
)

const (
	// MaxOracles bounds the registry size.
	MaxOracles = 5
	// MinConsensusOracles is the floor for the registry consensus threshold.
	MinConsensusOracles = 2
	// MaxScoreDeviationBound is the ceiling for the outlier filter width.
	MaxScoreDeviationBound = 50
)

// Kind tags how an oracle's attestations are verified.
type Kind uint8

const (
	// KindSigner oracles submit signed records verified against the
	// signature facility.
	KindSigner Kind = iota
	// KindFeed oracles publish through a pull feed; only supported by the
	// dedicated feed resolution path.
	KindFeed
	// KindCustom is reserved; attestations of this kind are always rejected.
	KindCustom
)

// Valid reports whether the kind is within the supported range.
func (k Kind) Valid() bool {
	switch k {
	case KindSigner, KindFeed, KindCustom:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindSigner:
		return "signer"
	case KindFeed:
		return "feed"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Config describes one trusted oracle. Weight is validated and persisted for
// forward compatibility but the consensus algorithm is unweighted.
type Config struct {
	Key    [32]byte `json:"key"`
	Kind   Kind     `json:"kind"`
	Weight uint16   `json:"weight"`
}

// Registry is the admin-curated set of trusted oracles together with the
// consensus policy knobs consumed during multi-oracle resolution.
type Registry struct {
	Admin             [20]byte `json:"admin"`
	Oracles           []Config `json:"oracles"`
	MinConsensus      uint8    `json:"minConsensus"`
	MaxScoreDeviation uint8    `json:"maxScoreDeviation"`
	CreatedAt         int64    `json:"createdAt"`
	UpdatedAt         int64    `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without affecting the
// stored instance.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Oracles = append([]Config(nil), r.Oracles...)
	return &clone
}

// Lookup returns the configuration of the oracle with the given key.
func (r *Registry) Lookup(key [32]byte) (Config, bool) {
	if r == nil {
		return Config{}, false
	}
	for _, cfg := range r.Oracles {
		if cfg.Key == key {
			return cfg, true
		}
	}
	return Config{}, false
}

// SubmissionInput is one oracle's contribution to a multi-oracle resolution.
type SubmissionInput struct {
	Oracle    [32]byte `json:"oracle"`
	Score     uint8    `json:"score"`
	Signature [64]byte `json:"signature"`
}

type registryState interface {
	OracleRegistryGet() (*Registry, bool, error)
	OracleRegistryPut(*Registry) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine owns the registry lifecycle: initialisation and admin-only
// membership changes.
type Engine struct {
	state   registryState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state registryState) { e.state = state }

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
	e.emitter.Emit(registryEvent{evt: evt})
}

func (e *Engine) loadRegistry() (*Registry, error) {
	if e == nil || e.state == nil {
		return nil, ErrRegistryNotFound
	}
	reg, ok, err := e.state.OracleRegistryGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRegistryNotFound
	}
	return reg, nil
}

// InitializeRegistry creates the singleton registry with its immutable policy
// knobs. Re-initialisation is rejected.
func (e *Engine) InitializeRegistry(admin [20]byte, minConsensus, maxScoreDeviation uint8) (*Registry, error) {
	if e == nil || e.state == nil {
		return nil, ErrRegistryNotFound
	}
	if minConsensus < MinConsensusOracles {
		return nil, ErrInvalidConsensusThreshold
	}
	if maxScoreDeviation > MaxScoreDeviationBound {
		return nil, ErrInvalidScoreDeviation
	}
	if _, ok, err := e.state.OracleRegistryGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrRegistryExists
	}
	now := e.nowFn()
	reg := &Registry{
		Admin:             admin,
		MinConsensus:      minConsensus,
		MaxScoreDeviation: maxScoreDeviation,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.state.OracleRegistryPut(reg); err != nil {
		return nil, err
	}
	e.emit(NewRegistryInitializedEvent(reg))
	return reg.Clone(), nil
}

// Registry returns the current registry, if initialised.
func (e *Engine) Registry() (*Registry, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrRegistryNotFound
	}
	reg, ok, err := e.state.OracleRegistryGet()
	if err != nil || !ok {
		return nil, ok, err
	}
	return reg.Clone(), true, nil
}

// AddOracle registers a trusted oracle. Admin only; duplicates and zero
// weights are rejected; the registry is capped at MaxOracles entries.
func (e *Engine) AddOracle(caller [20]byte, key [32]byte, kind Kind, weight uint16) error {
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if caller != reg.Admin {
		return ErrUnauthorized
	}
	if len(reg.Oracles) >= MaxOracles {
		return ErrMaxOraclesReached
	}
	if weight == 0 {
		return ErrInvalidOracleWeight
	}
	if !kind.Valid() {
		return ErrInvalidAttestation
	}
	if _, ok := reg.Lookup(key); ok {
		return ErrDuplicateOracle
	}
	reg.Oracles = append(reg.Oracles, Config{Key: key, Kind: kind, Weight: weight})
	reg.UpdatedAt = e.nowFn()
	if err := e.state.OracleRegistryPut(reg); err != nil {
		return err
	}
	e.emit(NewOracleAddedEvent(reg, key, kind, weight))
	return nil
}

// RemoveOracle drops an oracle from the registry. Admin only.
func (e *Engine) RemoveOracle(caller [20]byte, key [32]byte) error {
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if caller != reg.Admin {
		return ErrUnauthorized
	}
	kept := reg.Oracles[:0]
	for _, cfg := range reg.Oracles {
		if cfg.Key != key {
			kept = append(kept, cfg)
		}
	}
	if len(kept) == len(reg.Oracles) {
		return ErrOracleNotFound
	}
	reg.Oracles = kept
	reg.UpdatedAt = e.nowFn()
	if err := e.state.OracleRegistryPut(reg); err != nil {
		return err
	}
	e.emit(NewOracleRemovedEvent(reg, key))
	return nil
}
