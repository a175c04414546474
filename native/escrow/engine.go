package escrow

import (
	"math/big"
	"strings"
	"time"

	"x402resolve/core/events"
	"x402resolve/core/types"
	"x402resolve/native/oracle"
)

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(transactionID string) (*Escrow, bool, error)
	EscrowVaultAddress(transactionID string) [20]byte
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	OracleRegistryGet() (*oracle.Registry, bool, error)
	ProviderPenaltiesGet(provider [20]byte) (*ProviderPenalties, bool, error)
	ProviderPenaltiesPut(*ProviderPenalties) error
}

// ReputationHook is the slice of the reputation engine the escrow engine
// drives: dispute cost derivation when a dispute is filed and the two-party
// statistics update after every resolution.
type ReputationHook interface {
	DisputeCost(entity [20]byte) (*big.Int, error)
	RecordDisputeFiled(entity [20]byte) error
	ApplyResolution(agent, provider [20]byte, qualityScore, refundPercentage uint8) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns the escrow lifecycle: it enforces legal transitions, moves
// funds through the vault derived from the transaction id, and drives the
// reputation hook on dispute outcomes.
type Engine struct {
	state              engineState
	emitter            events.Emitter
	reputation         ReputationHook
	disputeFeeTreasury [20]byte
	nowFn              func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers wire the
// state backend, reputation hook and treasury before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetReputation configures the reputation hook driven on disputes.
func (e *Engine) SetReputation(hook ReputationHook) { e.reputation = hook }

// SetDisputeFeeTreasury configures the address that collects dispute filing
// costs.
func (e *Engine) SetDisputeFeeTreasury(addr [20]byte) { e.disputeFeeTreasury = addr }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
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
	e.emitter.Emit(escrowEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadEscrow(transactionID string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	esc, ok, err := e.state.EscrowGet(transactionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

// transferValue moves amount between two accounts in the escrow's value kind.
// Token escrows re-validate the mint before any balance moves.
func (e *Engine) transferValue(from, to [20]byte, kind ValueKind, mint string, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	toAcc = toAcc.Normalize()
	switch kind {
	case ValueNative:
		if fromAcc.BalanceNative.Cmp(amt) < 0 {
			return ErrInsufficientFunds
		}
		fromAcc.BalanceNative = new(big.Int).Sub(fromAcc.BalanceNative, amt)
		toAcc.BalanceNative = new(big.Int).Add(toAcc.BalanceNative, amt)
	case ValueToken:
		normalized, err := NormalizeMint(mint)
		if err != nil {
			return err
		}
		if fromAcc.TokenBalances == nil {
			return ErrMissingTokenAccount
		}
		balance := fromAcc.TokenBalance(normalized)
		if balance.Cmp(amt) < 0 {
			return ErrInsufficientFunds
		}
		fromAcc.SetTokenBalance(normalized, new(big.Int).Sub(balance, amt))
		toAcc.SetTokenBalance(normalized, new(big.Int).Add(toAcc.TokenBalance(normalized), amt))
	default:
		return ErrMissingTokenMint
	}
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// Initialize validates the escrow definition, moves the amount from the agent
// into the transaction vault and persists the escrow in Active status.
func (e *Engine) Initialize(agent, provider [20]byte, amount *big.Int, timeLock int64, transactionID string, kind ValueKind, mint string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if amt.Cmp(MaxEscrowAmount) > 0 {
		return nil, ErrAmountTooLarge
	}
	if timeLock < MinTimeLock || timeLock > MaxTimeLock {
		return nil, ErrInvalidTimeLock
	}
	trimmedID := strings.TrimSpace(transactionID)
	if trimmedID == "" || len(trimmedID) > MaxTransactionIDLen {
		return nil, ErrInvalidTransactionID
	}

	decimals := NativeDecimals
	normalizedMint := ""
	switch kind {
	case ValueNative:
		if amt.Cmp(MinNativeReserve) < 0 {
			return nil, ErrInsufficientReserve
		}
	case ValueToken:
		var err error
		normalizedMint, err = NormalizeMint(mint)
		if err != nil {
			return nil, err
		}
		decimals, _ = MintDecimals(normalizedMint)
	default:
		return nil, ErrMissingTokenMint
	}

	if _, ok, err := e.state.EscrowGet(trimmedID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrEscrowExists
	}

	now := e.now()
	esc := &Escrow{
		Agent:         agent,
		Provider:      provider,
		Amount:        amt,
		Kind:          kind,
		TokenMint:     normalizedMint,
		TokenDecimals: decimals,
		Status:        StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now + timeLock,
		TransactionID: trimmedID,
	}

	vault := e.state.EscrowVaultAddress(trimmedID)
	if err := e.transferValue(agent, vault, kind, normalizedMint, amt); err != nil {
		return nil, err
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewInitializedEvent(esc))
	return esc.Clone(), nil
}

// Get returns the stored escrow for a transaction id.
func (e *Engine) Get(transactionID string) (*Escrow, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	esc, ok, err := e.state.EscrowGet(transactionID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return esc.Clone(), true, nil
}

// Release settles the escrow in favour of the provider. The agent may release
// explicitly at any time; anyone may trigger the release once the time lock
// has elapsed.
func (e *Engine) Release(transactionID string, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(transactionID)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusActive {
		return nil, ErrInvalidStatus
	}
	now := e.now()
	isAgent := caller == esc.Agent
	expired := now >= esc.ExpiresAt
	if !isAgent && !expired {
		return nil, ErrTimeLockNotExpired
	}

	vault := e.state.EscrowVaultAddress(esc.TransactionID)
	if err := e.transferValue(vault, esc.Provider, esc.Kind, esc.TokenMint, esc.Amount); err != nil {
		return nil, err
	}
	esc.Status = StatusReleased
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewReleasedEvent(esc, now))
	return esc.Clone(), nil
}

// MarkDisputed transitions an active escrow into the disputed state. Only the
// agent may dispute, only inside the dispute window, and only after paying
// the reputation-scaled filing cost into the dispute fee treasury.
func (e *Engine) MarkDisputed(transactionID string, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(transactionID)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusActive {
		return nil, ErrInvalidStatus
	}
	if caller != esc.Agent {
		return nil, ErrUnauthorized
	}
	now := e.now()
	if now >= esc.ExpiresAt {
		return nil, ErrDisputeWindowExpired
	}
	if e.disputeFeeTreasury == ([20]byte{}) {
		return nil, ErrNilTreasury
	}
	if e.reputation == nil {
		return nil, ErrNilState
	}

	cost, err := e.reputation.DisputeCost(esc.Agent)
	if err != nil {
		return nil, err
	}
	agentAcc, err := e.state.GetAccount(esc.Agent)
	if err != nil {
		return nil, err
	}
	if agentAcc.Normalize().BalanceNative.Cmp(cost) < 0 {
		return nil, ErrInsufficientDisputeFunds
	}
	if err := e.transferValue(esc.Agent, e.disputeFeeTreasury, ValueNative, "", cost); err != nil {
		return nil, err
	}
	if err := e.reputation.RecordDisputeFiled(esc.Agent); err != nil {
		return nil, err
	}

	esc.Status = StatusDisputed
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(esc, cost, now))
	return esc.Clone(), nil
}

// splitAmounts computes the refund/payment split with wide intermediate
// arithmetic. refund + payment always equals the escrow amount.
func splitAmounts(amount *big.Int, refundPercentage uint8) (*big.Int, *big.Int, error) {
	if refundPercentage > 100 {
		return nil, nil, ErrInvalidRefundPercentage
	}
	total := cloneBigInt(amount)
	refund := new(big.Int).Mul(total, big.NewInt(int64(refundPercentage)))
	refund.Div(refund, big.NewInt(100))
	payment := new(big.Int).Sub(total, refund)
	if refund.Sign() < 0 || payment.Sign() < 0 {
		return nil, nil, ErrArithmeticOverflow
	}
	return refund, payment, nil
}

func (e *Engine) requireResolvable(esc *Escrow) error {
	if esc.Status != StatusActive && esc.Status != StatusDisputed {
		return ErrInvalidStatus
	}
	return nil
}

// settleResolution executes the fund split out of the vault, stores the
// outcome and audit submissions on the escrow, updates provider penalties and
// drives the reputation hook. All validation must have happened before the
// call.
func (e *Engine) settleResolution(esc *Escrow, qualityScore, refundPercentage uint8, refund, payment *big.Int, oracles [][32]byte, scores []uint8, now int64) (*Resolution, error) {
	vault := e.state.EscrowVaultAddress(esc.TransactionID)
	if refund.Sign() > 0 {
		if err := e.transferValue(vault, esc.Agent, esc.Kind, esc.TokenMint, refund); err != nil {
			return nil, err
		}
	}
	if payment.Sign() > 0 {
		if err := e.transferValue(vault, esc.Provider, esc.Kind, esc.TokenMint, payment); err != nil {
			return nil, err
		}
	}

	esc.Status = StatusResolved
	quality := qualityScore
	pct := refundPercentage
	esc.QualityScore = &quality
	esc.RefundPercentage = &pct

	esc.Submissions = esc.Submissions[:0]
	for i, key := range oracles {
		if i >= MaxOracleSubmissions {
			break
		}
		esc.Submissions = append(esc.Submissions, OracleSubmission{
			Oracle:      key,
			Score:       scores[i],
			SubmittedAt: now,
		})
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}

	if err := e.updatePenalties(esc.Provider, qualityScore, refundPercentage, refund, now); err != nil {
		return nil, err
	}
	if e.reputation != nil {
		if err := e.reputation.ApplyResolution(esc.Agent, esc.Provider, qualityScore, refundPercentage); err != nil {
			return nil, err
		}
	}

	return &Resolution{
		Escrow:           esc.Clone(),
		QualityScore:     qualityScore,
		RefundPercentage: refundPercentage,
		RefundAmount:     refund,
		PaymentAmount:    payment,
		Oracles:          oracles,
		Scores:           scores,
	}, nil
}

func (e *Engine) updatePenalties(provider [20]byte, qualityScore, refundPercentage uint8, refund *big.Int, now int64) error {
	penalties, ok, err := e.state.ProviderPenaltiesGet(provider)
	if err != nil {
		return err
	}
	if !ok {
		penalties = &ProviderPenalties{
			Provider:           provider,
			TotalRefundsIssued: big.NewInt(0),
			CreatedAt:          now,
		}
	}
	penalties.recordOutcome(qualityScore, refundPercentage, refund, now)
	return e.state.ProviderPenaltiesPut(penalties)
}

// ResolveDispute settles the escrow from a single verifier oracle signature.
// The signature instruction is expected at index 0 of the batch and must bind
// the canonical "{transaction_id}:{quality_score}" message to the verifier.
func (e *Engine) ResolveDispute(transactionID string, qualityScore, refundPercentage uint8, signature [64]byte, verifier [32]byte, batch []oracle.Instruction) (*Resolution, error) {
	esc, err := e.loadEscrow(transactionID)
	if err != nil {
		return nil, err
	}
	if err := e.requireResolvable(esc); err != nil {
		return nil, err
	}
	if qualityScore > 100 {
		return nil, ErrInvalidQualityScore
	}
	if refundPercentage > 100 {
		return nil, ErrInvalidRefundPercentage
	}

	message := oracle.DisputeMessage(esc.TransactionID, qualityScore)
	if err := oracle.VerifyInstructionAt(batch, 0, signature, verifier, message); err != nil {
		return nil, err
	}

	refund, payment, err := splitAmounts(esc.Amount, refundPercentage)
	if err != nil {
		return nil, err
	}
	now := e.now()
	res, err := e.settleResolution(esc, qualityScore, refundPercentage, refund, payment, [][32]byte{verifier}, []uint8{qualityScore}, now)
	if err != nil {
		return nil, err
	}
	e.emit(NewResolvedEvent(res))
	return res, nil
}

// ResolveDisputeFeed settles the escrow from a pull-feed attestation instead
// of a signature: the feed must be fresh and its embedded value must equal
// the submitted quality score exactly.
func (e *Engine) ResolveDisputeFeed(transactionID string, qualityScore, refundPercentage uint8, feed *oracle.FeedRecord) (*Resolution, error) {
	esc, err := e.loadEscrow(transactionID)
	if err != nil {
		return nil, err
	}
	if err := e.requireResolvable(esc); err != nil {
		return nil, err
	}
	if qualityScore > 100 {
		return nil, ErrInvalidQualityScore
	}
	if refundPercentage > 100 {
		return nil, ErrInvalidRefundPercentage
	}

	now := e.now()
	if err := feed.Verify(now, qualityScore); err != nil {
		return nil, err
	}

	refund, payment, err := splitAmounts(esc.Amount, refundPercentage)
	if err != nil {
		return nil, err
	}
	res, err := e.settleResolution(esc, qualityScore, refundPercentage, refund, payment, [][32]byte{feed.Feed}, []uint8{qualityScore}, now)
	if err != nil {
		return nil, err
	}
	e.emit(NewResolvedEvent(res))
	return res, nil
}

// ResolveDisputeMultiOracle settles the escrow from independent oracle
// submissions. Each submission is checked against the registry and its
// signature instruction (at the index matching its position in the list),
// the verified scores are reduced to a consensus score, and the refund
// percentage follows from the fixed quality schedule.
func (e *Engine) ResolveDisputeMultiOracle(transactionID string, submissions []oracle.SubmissionInput, batch []oracle.Instruction) (*Resolution, error) {
	esc, err := e.loadEscrow(transactionID)
	if err != nil {
		return nil, err
	}
	if err := e.requireResolvable(esc); err != nil {
		return nil, err
	}

	registry, ok, err := e.state.OracleRegistryGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNilRegistry
	}
	if len(submissions) < int(registry.MinConsensus) {
		return nil, ErrInsufficientOracleConsensus
	}
	if len(submissions) > MaxOracleSubmissions {
		return nil, ErrMaxOraclesReached
	}

	scores := make([]uint8, 0, len(submissions))
	oracles := make([][32]byte, 0, len(submissions))
	seen := make(map[[32]byte]struct{}, len(submissions))
	for index, sub := range submissions {
		cfg, ok := registry.Lookup(sub.Oracle)
		if !ok {
			return nil, ErrUnregisteredOracle
		}
		if _, dup := seen[sub.Oracle]; dup {
			return nil, ErrDuplicateOracleSubmission
		}
		if sub.Score > 100 {
			return nil, ErrInvalidQualityScore
		}
		switch cfg.Kind {
		case oracle.KindSigner:
			message := oracle.DisputeMessage(esc.TransactionID, sub.Score)
			if err := oracle.VerifyInstructionAt(batch, index, sub.Signature, sub.Oracle, message); err != nil {
				return nil, err
			}
		default:
			// Feed and custom oracles need resolution paths of their own.
			return nil, ErrUnsupportedOracleType
		}
		seen[sub.Oracle] = struct{}{}
		scores = append(scores, sub.Score)
		oracles = append(oracles, sub.Oracle)
	}

	consensus, err := ConsensusScore(scores, registry.MaxScoreDeviation)
	if err != nil {
		return nil, err
	}
	refundPercentage := RefundFromQuality(consensus)
	refund, payment, err := splitAmounts(esc.Amount, refundPercentage)
	if err != nil {
		return nil, err
	}

	now := e.now()
	res, err := e.settleResolution(esc, consensus, refundPercentage, refund, payment, oracles, scores, now)
	if err != nil {
		return nil, err
	}
	e.emit(NewMultiOracleResolvedEvent(res))
	return res, nil
}
