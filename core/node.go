package core

import (
	"math/big"
	"sync"
	"time"

	"x402resolve/core/events"
	"x402resolve/native/escrow"
	"x402resolve/native/oracle"
	"x402resolve/native/ratelimit"
	"x402resolve/native/reputation"
	"x402resolve/state"
)

// Node wires the module engines onto a shared state manager and serialises
// every state-mutating operation behind a single mutex. It is the execution
// environment for the RPC surface: signature batches are verified here before
// any engine binds them to an escrow.
type Node struct {
	mu sync.Mutex

	state      *state.Manager
	escrow     *escrow.Engine
	oracle     *oracle.Engine
	reputation *reputation.Engine
	ratelimit  *ratelimit.Engine
	nowFn      func() int64
}

// NewNode assembles the engines over the given state manager. The base
// dispute cost seeds the reputation-scaled filing fee and the treasury
// receives every charged fee.
func NewNode(manager *state.Manager, baseDisputeCost *big.Int, disputeFeeTreasury [20]byte, emitter events.Emitter) *Node {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}

	reputationEngine := reputation.NewEngine(baseDisputeCost)
	reputationEngine.SetState(manager)
	reputationEngine.SetEmitter(emitter)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(manager)
	escrowEngine.SetEmitter(emitter)
	escrowEngine.SetReputation(reputationEngine)
	escrowEngine.SetDisputeFeeTreasury(disputeFeeTreasury)

	oracleEngine := oracle.NewEngine()
	oracleEngine.SetState(manager)
	oracleEngine.SetEmitter(emitter)

	ratelimitEngine := ratelimit.NewEngine()
	ratelimitEngine.SetState(manager)

	return &Node{
		state:      manager,
		escrow:     escrowEngine,
		oracle:     oracleEngine,
		reputation: reputationEngine,
		ratelimit:  ratelimitEngine,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source across all engines. Intended for
// tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escrow.SetNowFunc(now)
	n.oracle.SetNowFunc(now)
	n.reputation.SetNowFunc(now)
	n.ratelimit.SetNowFunc(now)
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// EscrowInitialize funds a new escrow after the agent's transaction rate
// limit admits the operation. The slot is consumed only once the escrow is
// funded, so a rejected request leaves the limiter untouched.
func (n *Node) EscrowInitialize(agent, provider [20]byte, amount *big.Int, timeLock int64, transactionID string, kind escrow.ValueKind, mint string) (*escrow.Escrow, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ratelimit.CheckTransaction(agent); err != nil {
		return nil, err
	}
	esc, err := n.escrow.Initialize(agent, provider, amount, timeLock, transactionID, kind, mint)
	if err != nil {
		return nil, err
	}
	if err := n.ratelimit.RecordTransaction(agent); err != nil {
		return nil, err
	}
	return esc, nil
}

// EscrowGet returns the escrow stored under a transaction id.
func (n *Node) EscrowGet(transactionID string) (*escrow.Escrow, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Get(transactionID)
}

// EscrowRelease settles the escrow in favour of the provider.
func (n *Node) EscrowRelease(transactionID string, caller [20]byte) (*escrow.Escrow, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Release(transactionID, caller)
}

// EscrowMarkDisputed files a dispute after the caller's dispute rate limit
// admits the operation. The slot is consumed only once the dispute is filed,
// so a rejected request leaves the limiter untouched.
func (n *Node) EscrowMarkDisputed(transactionID string, caller [20]byte) (*escrow.Escrow, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ratelimit.CheckDispute(caller); err != nil {
		return nil, err
	}
	esc, err := n.escrow.MarkDisputed(transactionID, caller)
	if err != nil {
		return nil, err
	}
	if err := n.ratelimit.RecordDispute(caller); err != nil {
		return nil, err
	}
	return esc, nil
}

// EscrowResolve settles a dispute from a single verifier signature. The
// batch's signature payloads are cryptographically verified before the engine
// binds them to the escrow.
func (n *Node) EscrowResolve(transactionID string, qualityScore, refundPercentage uint8, signature [64]byte, verifier [32]byte, batch []oracle.Instruction) (*escrow.Resolution, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := oracle.VerifyBatch(batch); err != nil {
		return nil, err
	}
	return n.escrow.ResolveDispute(transactionID, qualityScore, refundPercentage, signature, verifier, batch)
}

// EscrowResolveFeed settles a dispute from a pull-feed attestation.
func (n *Node) EscrowResolveFeed(transactionID string, qualityScore, refundPercentage uint8, feed *oracle.FeedRecord) (*escrow.Resolution, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.ResolveDisputeFeed(transactionID, qualityScore, refundPercentage, feed)
}

// EscrowResolveMultiOracle settles a dispute from independent oracle
// submissions after verifying every signature instruction in the batch.
func (n *Node) EscrowResolveMultiOracle(transactionID string, submissions []oracle.SubmissionInput, batch []oracle.Instruction) (*escrow.Resolution, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := oracle.VerifyBatch(batch); err != nil {
		return nil, err
	}
	return n.escrow.ResolveDisputeMultiOracle(transactionID, submissions, batch)
}

// OracleInitializeRegistry bootstraps the singleton oracle registry.
func (n *Node) OracleInitializeRegistry(admin [20]byte, minConsensus, maxScoreDeviation uint8) (*oracle.Registry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.InitializeRegistry(admin, minConsensus, maxScoreDeviation)
}

// OracleAdd registers an oracle key with the registry.
func (n *Node) OracleAdd(caller [20]byte, key [32]byte, kind oracle.Kind, weight uint16) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.AddOracle(caller, key, kind, weight)
}

// OracleRemove drops an oracle key from the registry.
func (n *Node) OracleRemove(caller [20]byte, key [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.RemoveOracle(caller, key)
}

// OracleRegistry returns the current registry, if initialised.
func (n *Node) OracleRegistry() (*oracle.Registry, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.Registry()
}

// ReputationInitialize bootstraps an entity's reputation record.
func (n *Node) ReputationInitialize(entity [20]byte, role reputation.Role) (*reputation.EntityReputation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reputation.Initialize(entity, role)
}

// ReputationGet returns an entity's reputation record.
func (n *Node) ReputationGet(entity [20]byte) (*reputation.EntityReputation, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reputation.Get(entity)
}

// ReputationDisputeCost returns the reputation-scaled dispute filing cost for
// an entity.
func (n *Node) ReputationDisputeCost(entity [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reputation.DisputeCost(entity)
}

// RateLimitSetTier updates an entity's verification tier.
func (n *Node) RateLimitSetTier(entity [20]byte, tier ratelimit.Tier) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ratelimit.SetTier(entity, tier)
}

// RateLimitGet returns an entity's rate limiter state.
func (n *Node) RateLimitGet(entity [20]byte) (*ratelimit.RateLimiter, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ratelimit.Get(entity)
}

// AgreementCreate stores the quality terms agreed for a transaction before
// its escrow is funded.
func (n *Node) AgreementCreate(agreement *escrow.WorkAgreement) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if agreement != nil && agreement.CreatedAt == 0 {
		agreement.CreatedAt = n.nowFn()
	}
	return n.state.AgreementPut(agreement)
}

// AgreementGet returns the work agreement stored under a transaction id.
func (n *Node) AgreementGet(transactionID string) (*escrow.WorkAgreement, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.AgreementGet(transactionID)
}

// PenaltyGet returns a provider's accumulated penalty record.
func (n *Node) PenaltyGet(provider [20]byte) (*escrow.ProviderPenalties, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.ProviderPenaltiesGet(provider)
}
