package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"x402resolve/core/types"
	"x402resolve/native/escrow"
	"x402resolve/native/oracle"
	"x402resolve/native/ratelimit"
	"x402resolve/native/reputation"
	"x402resolve/storage"
)

const (
	accountPrefix     = "x402/account/"
	escrowPrefix      = "x402/escrow/"
	reputationPrefix  = "x402/reputation/"
	rateLimiterPrefix = "x402/ratelimit/"
	agreementPrefix   = "x402/agreement/"
	penaltyPrefix     = "x402/penalty/"
	registryKey       = "x402/oracle/registry"

	vaultDomain = "x402/escrow-vault/"
)

// Manager persists all module records behind a key/value database and is the
// single state backend the engines are wired to.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func addressKey(prefix string, addr [20]byte) []byte {
	return []byte(prefix + hex.EncodeToString(addr[:]))
}

func (m *Manager) load(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", string(key), err)
	}
	return true, nil
}

func (m *Manager) store(key []byte, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", string(key), err)
	}
	return m.db.Put(key, raw)
}

// GetAccount loads the account at addr, returning a zeroed account when the
// address has never been written.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := m.load(addressKey(accountPrefix, addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).Normalize(), nil
	}
	return account.Normalize(), nil
}

// PutAccount persists the account record at addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %x", addr)
	}
	return m.store(addressKey(accountPrefix, addr), account.Normalize())
}

// EscrowVaultAddress derives the deterministic vault address holding an
// escrow's funds from its transaction id.
func (m *Manager) EscrowVaultAddress(transactionID string) [20]byte {
	digest := gethcrypto.Keccak256([]byte(vaultDomain), []byte(transactionID))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// EscrowGet loads the escrow stored under a transaction id.
func (m *Manager) EscrowGet(transactionID string) (*escrow.Escrow, bool, error) {
	record := &escrow.Escrow{}
	ok, err := m.load([]byte(escrowPrefix+transactionID), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// EscrowPut persists an escrow keyed by its transaction id.
func (m *Manager) EscrowPut(record *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(record)
	if err != nil {
		return err
	}
	return m.store([]byte(escrowPrefix+sanitized.TransactionID), sanitized)
}

// OracleRegistryGet loads the singleton oracle registry.
func (m *Manager) OracleRegistryGet() (*oracle.Registry, bool, error) {
	record := &oracle.Registry{}
	ok, err := m.load([]byte(registryKey), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// OracleRegistryPut persists the singleton oracle registry.
func (m *Manager) OracleRegistryPut(record *oracle.Registry) error {
	if record == nil {
		return fmt.Errorf("state: nil oracle registry")
	}
	return m.store([]byte(registryKey), record)
}

// ReputationGet loads the reputation record for an entity.
func (m *Manager) ReputationGet(entity [20]byte) (*reputation.EntityReputation, bool, error) {
	record := &reputation.EntityReputation{}
	ok, err := m.load(addressKey(reputationPrefix, entity), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// ReputationPut persists the reputation record for an entity.
func (m *Manager) ReputationPut(record *reputation.EntityReputation) error {
	if record == nil {
		return reputation.ErrNilReputation
	}
	return m.store(addressKey(reputationPrefix, record.Entity), record)
}

// RateLimiterGet loads the rate limiter state for an entity.
func (m *Manager) RateLimiterGet(entity [20]byte) (*ratelimit.RateLimiter, bool, error) {
	record := &ratelimit.RateLimiter{}
	ok, err := m.load(addressKey(rateLimiterPrefix, entity), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// RateLimiterPut persists the rate limiter state for an entity.
func (m *Manager) RateLimiterPut(record *ratelimit.RateLimiter) error {
	if record == nil {
		return fmt.Errorf("state: nil rate limiter")
	}
	return m.store(addressKey(rateLimiterPrefix, record.Entity), record)
}

// AgreementGet loads the work agreement stored under a transaction id.
func (m *Manager) AgreementGet(transactionID string) (*escrow.WorkAgreement, bool, error) {
	record := &escrow.WorkAgreement{}
	ok, err := m.load([]byte(agreementPrefix+transactionID), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// AgreementPut persists a work agreement keyed by its transaction id.
func (m *Manager) AgreementPut(record *escrow.WorkAgreement) error {
	if record == nil {
		return fmt.Errorf("state: nil work agreement")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	return m.store([]byte(agreementPrefix+record.TransactionID), record)
}

// ProviderPenaltiesGet loads the penalty record for a provider.
func (m *Manager) ProviderPenaltiesGet(provider [20]byte) (*escrow.ProviderPenalties, bool, error) {
	record := &escrow.ProviderPenalties{}
	ok, err := m.load(addressKey(penaltyPrefix, provider), record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record, true, nil
}

// ProviderPenaltiesPut persists the penalty record for a provider.
func (m *Manager) ProviderPenaltiesPut(record *escrow.ProviderPenalties) error {
	if record == nil {
		return fmt.Errorf("state: nil provider penalties")
	}
	return m.store(addressKey(penaltyPrefix, record.Provider), record)
}
