package escrow

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"x402resolve/core/types"
	"x402resolve/native/oracle"
)

type mockState struct {
	escrows   map[string]*Escrow
	accounts  map[[20]byte]*types.Account
	registry  *oracle.Registry
	penalties map[[20]byte]*ProviderPenalties
}

func newMockState() *mockState {
	return &mockState{
		escrows:   make(map[string]*Escrow),
		accounts:  make(map[[20]byte]*types.Account),
		penalties: make(map[[20]byte]*ProviderPenalties),
	}
}

func (m *mockState) EscrowPut(esc *Escrow) error {
	m.escrows[esc.TransactionID] = esc.Clone()
	return nil
}

func (m *mockState) EscrowGet(transactionID string) (*Escrow, bool, error) {
	esc, ok := m.escrows[transactionID]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) EscrowVaultAddress(transactionID string) [20]byte {
	digest := sha256.Sum256([]byte("vault/" + transactionID))
	var addr [20]byte
	copy(addr[:], digest[:20])
	return addr
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	account, ok := m.accounts[addr]
	if !ok {
		return (&types.Account{}).Normalize(), nil
	}
	return account, nil
}

func (m *mockState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account
	return nil
}

func (m *mockState) OracleRegistryGet() (*oracle.Registry, bool, error) {
	if m.registry == nil {
		return nil, false, nil
	}
	return m.registry.Clone(), true, nil
}

func (m *mockState) ProviderPenaltiesGet(provider [20]byte) (*ProviderPenalties, bool, error) {
	penalties, ok := m.penalties[provider]
	if !ok {
		return nil, false, nil
	}
	return penalties.Clone(), true, nil
}

func (m *mockState) ProviderPenaltiesPut(penalties *ProviderPenalties) error {
	m.penalties[penalties.Provider] = penalties.Clone()
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	account := (&types.Account{}).Normalize()
	account.BalanceNative = big.NewInt(amount)
	m.accounts[addr] = account
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	account, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return account.BalanceNative
}

type mockReputation struct {
	cost            *big.Int
	disputesFiled   int
	resolutionsSeen int
	lastQuality     uint8
	lastRefund      uint8
}

func (m *mockReputation) DisputeCost(entity [20]byte) (*big.Int, error) {
	return new(big.Int).Set(m.cost), nil
}

func (m *mockReputation) RecordDisputeFiled(entity [20]byte) error {
	m.disputesFiled++
	return nil
}

func (m *mockReputation) ApplyResolution(agent, provider [20]byte, qualityScore, refundPercentage uint8) error {
	m.resolutionsSeen++
	m.lastQuality = qualityScore
	m.lastRefund = refundPercentage
	return nil
}

var (
	agentAddr    = [20]byte{0xaa}
	providerAddr = [20]byte{0xbb}
	treasuryAddr = [20]byte{0xcc}
)

func newEscrowTestEngine(state *mockState) (*Engine, *mockReputation) {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_000_000 })
	engine.SetDisputeFeeTreasury(treasuryAddr)
	hook := &mockReputation{cost: big.NewInt(1_000)}
	engine.SetReputation(hook)
	return engine, hook
}

func activeEscrow(t *testing.T, engine *Engine, state *mockState, transactionID string) *Escrow {
	t.Helper()
	state.fund(agentAddr, 10_000_000)
	esc, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(2_000_000), MinTimeLock, transactionID, ValueNative, "")
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return esc
}

func TestInitialize(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	esc := activeEscrow(t, engine, state, "tx-init")

	if esc.Status != StatusActive {
		t.Fatalf("expected active status, got %v", esc.Status)
	}
	if esc.ExpiresAt != 1_000_000+MinTimeLock {
		t.Fatalf("unexpected expiry %d", esc.ExpiresAt)
	}
	if got := state.balance(agentAddr).Int64(); got != 8_000_000 {
		t.Fatalf("agent balance %d, want 8000000", got)
	}
	vault := state.EscrowVaultAddress("tx-init")
	if got := state.balance(vault).Int64(); got != 2_000_000 {
		t.Fatalf("vault balance %d, want 2000000", got)
	}
}

func TestInitializeValidation(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	state.fund(agentAddr, 10_000_000)

	cases := []struct {
		name     string
		amount   *big.Int
		timeLock int64
		txID     string
		wantErr  error
	}{
		{"zero amount", big.NewInt(0), MinTimeLock, "tx", ErrInvalidAmount},
		{"negative amount", big.NewInt(-5), MinTimeLock, "tx", ErrInvalidAmount},
		{"too large", new(big.Int).Add(MaxEscrowAmount, big.NewInt(1)), MinTimeLock, "tx", ErrAmountTooLarge},
		{"below reserve", big.NewInt(999_999), MinTimeLock, "tx", ErrInsufficientReserve},
		{"time lock too short", big.NewInt(2_000_000), MinTimeLock - 1, "tx", ErrInvalidTimeLock},
		{"time lock too long", big.NewInt(2_000_000), MaxTimeLock + 1, "tx", ErrInvalidTimeLock},
		{"empty id", big.NewInt(2_000_000), MinTimeLock, "", ErrInvalidTransactionID},
		{"long id", big.NewInt(2_000_000), MinTimeLock, string(make([]byte, MaxTransactionIDLen+1)), ErrInvalidTransactionID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Initialize(agentAddr, providerAddr, tc.amount, tc.timeLock, tc.txID, ValueNative, "")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestInitializeDuplicate(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-dup")

	_, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(2_000_000), MinTimeLock, "tx-dup", ValueNative, "")
	if !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("expected ErrEscrowExists, got %v", err)
	}
}

func TestInitializeInsufficientFunds(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	state.fund(agentAddr, 1_500_000)

	_, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(2_000_000), MinTimeLock, "tx-poor", ValueNative, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestInitializeToken(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	account := (&types.Account{}).Normalize()
	account.SetTokenBalance(MintUSDC, big.NewInt(500))
	state.accounts[agentAddr] = account

	esc, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(100), MinTimeLock, "tx-token", ValueToken, "usdc")
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if esc.TokenMint != MintUSDC {
		t.Fatalf("unexpected mint %q", esc.TokenMint)
	}
	if esc.TokenDecimals != 6 {
		t.Fatalf("unexpected decimals %d", esc.TokenDecimals)
	}
	vault := state.EscrowVaultAddress("tx-token")
	if got := state.accounts[vault].TokenBalance(MintUSDC).Int64(); got != 100 {
		t.Fatalf("vault token balance %d, want 100", got)
	}
}

func TestInitializeTokenUnsupportedMint(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	state.fund(agentAddr, 10_000_000)

	if _, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(100), MinTimeLock, "tx", ValueToken, "doge"); err == nil {
		t.Fatal("expected error for unsupported mint")
	}
	if _, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(100), MinTimeLock, "tx", ValueToken, ""); !errors.Is(err, ErrMissingTokenMint) {
		t.Fatalf("expected ErrMissingTokenMint, got %v", err)
	}
}

func TestReleaseByAgent(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-release")

	esc, err := engine.Release("tx-release", agentAddr)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if esc.Status != StatusReleased {
		t.Fatalf("expected released, got %v", esc.Status)
	}
	if got := state.balance(providerAddr).Int64(); got != 2_000_000 {
		t.Fatalf("provider balance %d, want 2000000", got)
	}

	if _, err := engine.Release("tx-release", agentAddr); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on double release, got %v", err)
	}
}

func TestReleaseBeforeExpiryRequiresAgent(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-early")

	_, err := engine.Release("tx-early", providerAddr)
	if !errors.Is(err, ErrTimeLockNotExpired) {
		t.Fatalf("expected ErrTimeLockNotExpired, got %v", err)
	}
}

func TestReleaseAfterExpiryByAnyone(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-expired")

	engine.SetNowFunc(func() int64 { return 1_000_000 + MinTimeLock })
	esc, err := engine.Release("tx-expired", providerAddr)
	if err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
	if esc.Status != StatusReleased {
		t.Fatalf("expected released, got %v", esc.Status)
	}
}

func TestReleaseNotFound(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	if _, err := engine.Release("missing", agentAddr); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound, got %v", err)
	}
}

func TestMarkDisputed(t *testing.T) {
	state := newMockState()
	engine, hook := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-dispute")

	agentBefore := state.balance(agentAddr).Int64()
	esc, err := engine.MarkDisputed("tx-dispute", agentAddr)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if esc.Status != StatusDisputed {
		t.Fatalf("expected disputed, got %v", esc.Status)
	}
	if hook.disputesFiled != 1 {
		t.Fatalf("expected dispute recorded on hook, got %d", hook.disputesFiled)
	}
	if got := state.balance(treasuryAddr).Int64(); got != 1_000 {
		t.Fatalf("treasury balance %d, want 1000", got)
	}
	if got := state.balance(agentAddr).Int64(); got != agentBefore-1_000 {
		t.Fatalf("agent balance %d, want %d", got, agentBefore-1_000)
	}
}

func TestMarkDisputedAuthorization(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-auth")

	if _, err := engine.MarkDisputed("tx-auth", providerAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMarkDisputedWindowExpired(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-late")

	engine.SetNowFunc(func() int64 { return 1_000_000 + MinTimeLock })
	if _, err := engine.MarkDisputed("tx-late", agentAddr); !errors.Is(err, ErrDisputeWindowExpired) {
		t.Fatalf("expected ErrDisputeWindowExpired, got %v", err)
	}
}

func TestMarkDisputedInsufficientFee(t *testing.T) {
	state := newMockState()
	engine, hook := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-broke")
	hook.cost = big.NewInt(100_000_000)

	if _, err := engine.MarkDisputed("tx-broke", agentAddr); !errors.Is(err, ErrInsufficientDisputeFunds) {
		t.Fatalf("expected ErrInsufficientDisputeFunds, got %v", err)
	}
}

func signResolution(t *testing.T, transactionID string, score uint8) ([]oracle.Instruction, [64]byte, [32]byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := oracle.DisputeMessage(transactionID, score)
	signature := ed25519.Sign(priv, message)

	var sig [64]byte
	copy(sig[:], signature)
	var signer [32]byte
	copy(signer[:], pub)
	return []oracle.Instruction{oracle.NewSignatureInstruction(pub, signature, message)}, sig, signer
}

func TestResolveDispute(t *testing.T) {
	state := newMockState()
	engine, hook := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-resolve")
	if _, err := engine.MarkDisputed("tx-resolve", agentAddr); err != nil {
		t.Fatalf("dispute: %v", err)
	}

	batch, sig, verifier := signResolution(t, "tx-resolve", 60)
	agentBefore := state.balance(agentAddr).Int64()

	res, err := engine.ResolveDispute("tx-resolve", 60, 75, sig, verifier, batch)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Escrow.Status != StatusResolved {
		t.Fatalf("expected resolved, got %v", res.Escrow.Status)
	}
	if res.RefundAmount.Int64() != 1_500_000 || res.PaymentAmount.Int64() != 500_000 {
		t.Fatalf("unexpected split refund=%s payment=%s", res.RefundAmount, res.PaymentAmount)
	}
	if got := state.balance(agentAddr).Int64(); got != agentBefore+1_500_000 {
		t.Fatalf("agent balance %d, want %d", got, agentBefore+1_500_000)
	}
	if got := state.balance(providerAddr).Int64(); got != 500_000 {
		t.Fatalf("provider balance %d, want 500000", got)
	}
	if res.Escrow.QualityScore == nil || *res.Escrow.QualityScore != 60 {
		t.Fatal("quality score not recorded")
	}
	if res.Escrow.RefundPercentage == nil || *res.Escrow.RefundPercentage != 75 {
		t.Fatal("refund percentage not recorded")
	}
	if hook.resolutionsSeen != 1 || hook.lastQuality != 60 || hook.lastRefund != 75 {
		t.Fatalf("reputation hook not driven: %+v", hook)
	}
	if len(res.Escrow.Submissions) != 1 || res.Escrow.Submissions[0].Oracle != verifier {
		t.Fatalf("submission audit trail missing: %+v", res.Escrow.Submissions)
	}
}

func TestResolveDisputeActiveEscrow(t *testing.T) {
	// Resolution does not require a prior dispute filing.
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-direct")

	batch, sig, verifier := signResolution(t, "tx-direct", 90)
	res, err := engine.ResolveDispute("tx-direct", 90, 0, sig, verifier, batch)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := state.balance(providerAddr).Int64(); got != 2_000_000 {
		t.Fatalf("provider balance %d, want full amount", got)
	}
	if res.RefundAmount.Sign() != 0 {
		t.Fatalf("expected zero refund, got %s", res.RefundAmount)
	}
}

func TestResolveDisputeRejectsBadSignatureBinding(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-badsig")

	batch, sig, verifier := signResolution(t, "tx-badsig", 60)
	sig[10] ^= 0x01
	_, err := engine.ResolveDispute("tx-badsig", 60, 75, sig, verifier, batch)
	if !errors.Is(err, oracle.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestResolveDisputeRejectsScoreMismatch(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-mismatch")

	// Signed for score 60, submitted as 90.
	batch, sig, verifier := signResolution(t, "tx-mismatch", 60)
	_, err := engine.ResolveDispute("tx-mismatch", 90, 0, sig, verifier, batch)
	if !errors.Is(err, oracle.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestResolveDisputeValidatesRanges(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-range")
	batch, sig, verifier := signResolution(t, "tx-range", 60)

	if _, err := engine.ResolveDispute("tx-range", 101, 50, sig, verifier, batch); !errors.Is(err, ErrInvalidQualityScore) {
		t.Fatalf("expected ErrInvalidQualityScore, got %v", err)
	}
	if _, err := engine.ResolveDispute("tx-range", 60, 101, sig, verifier, batch); !errors.Is(err, ErrInvalidRefundPercentage) {
		t.Fatalf("expected ErrInvalidRefundPercentage, got %v", err)
	}
}

func TestResolveDisputeTerminalStatus(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-final")
	if _, err := engine.Release("tx-final", agentAddr); err != nil {
		t.Fatalf("release: %v", err)
	}

	batch, sig, verifier := signResolution(t, "tx-final", 60)
	if _, err := engine.ResolveDispute("tx-final", 60, 75, sig, verifier, batch); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestResolveDisputeFeed(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-feed")

	feed := &oracle.FeedRecord{Feed: [32]byte{0x07}, Value: big.NewInt(45), UpdatedAt: 1_000_000 - 60}
	res, err := engine.ResolveDisputeFeed("tx-feed", 45, 100, feed)
	if err != nil {
		t.Fatalf("resolve feed: %v", err)
	}
	if res.RefundAmount.Int64() != 2_000_000 {
		t.Fatalf("expected full refund, got %s", res.RefundAmount)
	}
}

func TestResolveDisputeFeedStale(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-stale")

	feed := &oracle.FeedRecord{Feed: [32]byte{0x07}, Value: big.NewInt(45), UpdatedAt: 1_000_000 - oracle.MaxFeedAgeSeconds - 1}
	if _, err := engine.ResolveDisputeFeed("tx-stale", 45, 100, feed); !errors.Is(err, oracle.ErrStaleAttestation) {
		t.Fatalf("expected ErrStaleAttestation, got %v", err)
	}
}

type signerKey struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	key  [32]byte
}

func newSignerKey(t *testing.T) signerKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var key [32]byte
	copy(key[:], pub)
	return signerKey{pub: pub, priv: priv, key: key}
}

func (k signerKey) submit(transactionID string, score uint8) (oracle.SubmissionInput, oracle.Instruction) {
	message := oracle.DisputeMessage(transactionID, score)
	signature := ed25519.Sign(k.priv, message)
	var sig [64]byte
	copy(sig[:], signature)
	return oracle.SubmissionInput{Oracle: k.key, Score: score, Signature: sig},
		oracle.NewSignatureInstruction(k.pub, signature, message)
}

func registrySigners(t *testing.T, state *mockState, count int) []signerKey {
	t.Helper()
	signers := make([]signerKey, count)
	registry := &oracle.Registry{
		Admin:             [20]byte{0x01},
		MinConsensus:      2,
		MaxScoreDeviation: 15,
	}
	for i := range signers {
		signers[i] = newSignerKey(t)
		registry.Oracles = append(registry.Oracles, oracle.Config{
			Key:    signers[i].key,
			Kind:   oracle.KindSigner,
			Weight: 100,
		})
	}
	state.registry = registry
	return signers
}

func TestResolveDisputeMultiOracle(t *testing.T) {
	state := newMockState()
	engine, hook := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-multi")
	signers := registrySigners(t, state, 3)

	scores := []uint8{58, 60, 62}
	submissions := make([]oracle.SubmissionInput, 0, 3)
	batch := make([]oracle.Instruction, 0, 3)
	for i, signer := range signers {
		sub, inst := signer.submit("tx-multi", scores[i])
		submissions = append(submissions, sub)
		batch = append(batch, inst)
	}

	res, err := engine.ResolveDisputeMultiOracle("tx-multi", submissions, batch)
	if err != nil {
		t.Fatalf("resolve multi: %v", err)
	}
	// Median of [58, 60, 62] is 60, quality tier 50-64 refunds 75 percent.
	if res.QualityScore != 60 {
		t.Fatalf("expected consensus 60, got %d", res.QualityScore)
	}
	if res.RefundPercentage != 75 {
		t.Fatalf("expected refund 75, got %d", res.RefundPercentage)
	}
	if res.RefundAmount.Int64() != 1_500_000 || res.PaymentAmount.Int64() != 500_000 {
		t.Fatalf("unexpected split refund=%s payment=%s", res.RefundAmount, res.PaymentAmount)
	}
	if len(res.Escrow.Submissions) != 3 {
		t.Fatalf("expected 3 stored submissions, got %d", len(res.Escrow.Submissions))
	}
	if hook.resolutionsSeen != 1 {
		t.Fatal("reputation hook not driven")
	}
}

func TestResolveDisputeMultiOracleOutlier(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-outlier")
	signers := registrySigners(t, state, 3)

	scores := []uint8{40, 90, 92}
	submissions := make([]oracle.SubmissionInput, 0, 3)
	batch := make([]oracle.Instruction, 0, 3)
	for i, signer := range signers {
		sub, inst := signer.submit("tx-outlier", scores[i])
		submissions = append(submissions, sub)
		batch = append(batch, inst)
	}

	res, err := engine.ResolveDisputeMultiOracle("tx-outlier", submissions, batch)
	if err != nil {
		t.Fatalf("resolve multi: %v", err)
	}
	if res.QualityScore != 92 {
		t.Fatalf("expected outlier-filtered consensus 92, got %d", res.QualityScore)
	}
	if res.RefundPercentage != 0 {
		t.Fatalf("expected zero refund at quality 92, got %d", res.RefundPercentage)
	}
}

func TestResolveDisputeMultiOracleUnregistered(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-unreg")
	registrySigners(t, state, 2)

	outsider := newSignerKey(t)
	subA, instA := outsider.submit("tx-unreg", 60)
	subB, instB := newSignerKey(t).submit("tx-unreg", 62)
	_, err := engine.ResolveDisputeMultiOracle("tx-unreg", []oracle.SubmissionInput{subA, subB}, []oracle.Instruction{instA, instB})
	if !errors.Is(err, ErrUnregisteredOracle) {
		t.Fatalf("expected ErrUnregisteredOracle, got %v", err)
	}
}

func TestResolveDisputeMultiOracleDuplicate(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-dupsub")
	signers := registrySigners(t, state, 2)

	subA, instA := signers[0].submit("tx-dupsub", 60)
	subB, instB := signers[0].submit("tx-dupsub", 62)
	_, err := engine.ResolveDisputeMultiOracle("tx-dupsub", []oracle.SubmissionInput{subA, subB}, []oracle.Instruction{instA, instB})
	if !errors.Is(err, ErrDuplicateOracleSubmission) {
		t.Fatalf("expected ErrDuplicateOracleSubmission, got %v", err)
	}
}

func TestResolveDisputeMultiOracleTooFew(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-few")
	signers := registrySigners(t, state, 2)

	sub, inst := signers[0].submit("tx-few", 60)
	_, err := engine.ResolveDisputeMultiOracle("tx-few", []oracle.SubmissionInput{sub}, []oracle.Instruction{inst})
	if !errors.Is(err, ErrInsufficientOracleConsensus) {
		t.Fatalf("expected ErrInsufficientOracleConsensus, got %v", err)
	}
}

func TestResolveDisputeMultiOracleUnsupportedKind(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-kind")
	signers := registrySigners(t, state, 2)
	state.registry.Oracles[1].Kind = oracle.KindFeed

	subA, instA := signers[0].submit("tx-kind", 60)
	subB, instB := signers[1].submit("tx-kind", 62)
	_, err := engine.ResolveDisputeMultiOracle("tx-kind", []oracle.SubmissionInput{subA, subB}, []oracle.Instruction{instA, instB})
	if !errors.Is(err, ErrUnsupportedOracleType) {
		t.Fatalf("expected ErrUnsupportedOracleType, got %v", err)
	}
}

func TestResolveDisputeMultiOracleNoRegistry(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-noreg")

	sub, inst := newSignerKey(t).submit("tx-noreg", 60)
	_, err := engine.ResolveDisputeMultiOracle("tx-noreg", []oracle.SubmissionInput{sub, sub}, []oracle.Instruction{inst, inst})
	if !errors.Is(err, ErrNilRegistry) {
		t.Fatalf("expected ErrNilRegistry, got %v", err)
	}
}

func TestResolutionUpdatesPenalties(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)
	activeEscrow(t, engine, state, "tx-pen")

	// Quality 20 with a full refund is both a poor quality mark and a strike.
	batch, sig, verifier := signResolution(t, "tx-pen", 20)
	if _, err := engine.ResolveDispute("tx-pen", 20, 100, sig, verifier, batch); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	penalties, ok, err := state.ProviderPenaltiesGet(providerAddr)
	if err != nil || !ok {
		t.Fatalf("penalties: ok=%v err=%v", ok, err)
	}
	if penalties.StrikeCount != 1 {
		t.Fatalf("expected 1 strike, got %d", penalties.StrikeCount)
	}
	if penalties.PoorQualityCount != 1 {
		t.Fatalf("expected 1 poor quality mark, got %d", penalties.PoorQualityCount)
	}
	if penalties.TotalRefundsIssued.Int64() != 2_000_000 {
		t.Fatalf("expected refunds total 2000000, got %s", penalties.TotalRefundsIssued)
	}
}

func TestSuspensionAfterThreeStrikes(t *testing.T) {
	state := newMockState()
	engine, _ := newEscrowTestEngine(state)

	for i, txID := range []string{"tx-s1", "tx-s2", "tx-s3"} {
		state.fund(agentAddr, 10_000_000)
		if _, err := engine.Initialize(agentAddr, providerAddr, big.NewInt(2_000_000), MinTimeLock, txID, ValueNative, ""); err != nil {
			t.Fatalf("initialize %d: %v", i, err)
		}
		batch, sig, verifier := signResolution(t, txID, 20)
		if _, err := engine.ResolveDispute(txID, 20, 100, sig, verifier, batch); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}

	penalties, ok, _ := state.ProviderPenaltiesGet(providerAddr)
	if !ok {
		t.Fatal("missing penalties record")
	}
	if penalties.StrikeCount != 3 {
		t.Fatalf("expected 3 strikes, got %d", penalties.StrikeCount)
	}
	if !penalties.Suspended {
		t.Fatal("expected provider suspended after three strikes")
	}
	if penalties.SuspensionEnd != 1_000_000+7*86_400 {
		t.Fatalf("unexpected suspension end %d", penalties.SuspensionEnd)
	}
}
