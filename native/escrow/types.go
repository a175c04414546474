package escrow

import (
	"math/big"
	"strings"
)

// Validation constants mirrored across every entry point.
const (
	// MinTimeLock is one hour.
	MinTimeLock int64 = 3600
	// MaxTimeLock is thirty days.
	MaxTimeLock int64 = 2_592_000
	// MaxTransactionIDLen bounds the external escrow key.
	MaxTransactionIDLen = 64
	// MaxOracleSubmissions bounds the audit trail stored on an escrow.
	MaxOracleSubmissions = 5
	// NativeDecimals is the precision of the native unit.
	NativeDecimals uint8 = 9
)

var (
	// MinNativeReserve is the smallest native escrow able to carry its own
	// storage reserve.
	MinNativeReserve = big.NewInt(1_000_000)
	// MaxEscrowAmount caps a single escrow.
	MaxEscrowAmount = big.NewInt(1_000_000_000_000)
)

// Status represents the lifecycle states of an escrow. Released and Resolved
// are terminal.
type Status uint8

const (
	StatusActive Status = iota
	StatusReleased
	StatusDisputed
	StatusResolved
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusReleased, StatusDisputed, StatusResolved:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusReleased:
		return "released"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// ValueKind tags what the escrow holds: the native unit or a fungible token.
type ValueKind uint8

const (
	ValueNative ValueKind = iota
	ValueToken
)

// Valid reports whether the kind is within the supported range.
func (k ValueKind) Valid() bool {
	return k == ValueNative || k == ValueToken
}

func (k ValueKind) String() string {
	if k == ValueToken {
		return "token"
	}
	return "native"
}

// OracleSubmission is one verified score retained on a resolved escrow for
// auditability.
type OracleSubmission struct {
	Oracle      [32]byte `json:"oracle"`
	Score       uint8    `json:"score"`
	SubmittedAt int64    `json:"submittedAt"`
}

// Escrow holds one pay-per-use payment between an agent and a provider. The
// transaction id is the stable external key: it addresses the escrow, derives
// the vault that holds its funds, and is immutable after creation. Quality
// score and refund percentage are both unset until resolution and always set
// together.
type Escrow struct {
	Agent            [20]byte           `json:"agent"`
	Provider         [20]byte           `json:"provider"`
	Amount           *big.Int           `json:"amount"`
	Kind             ValueKind          `json:"kind"`
	TokenMint        string             `json:"tokenMint,omitempty"`
	TokenDecimals    uint8              `json:"tokenDecimals"`
	Status           Status             `json:"status"`
	CreatedAt        int64              `json:"createdAt"`
	ExpiresAt        int64              `json:"expiresAt"`
	TransactionID    string             `json:"transactionId"`
	QualityScore     *uint8             `json:"qualityScore,omitempty"`
	RefundPercentage *uint8             `json:"refundPercentage,omitempty"`
	Submissions      []OracleSubmission `json:"submissions,omitempty"`
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if e.QualityScore != nil {
		v := *e.QualityScore
		clone.QualityScore = &v
	}
	if e.RefundPercentage != nil {
		v := *e.RefundPercentage
		clone.RefundPercentage = &v
	}
	clone.Submissions = append([]OracleSubmission(nil), e.Submissions...)
	return &clone
}

// SanitizeEscrow validates and normalises the supplied escrow definition,
// returning a cloned instance with a non-nil amount. The original value is
// not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, ErrNilEscrow
	}
	clone := e.Clone()
	clone.TransactionID = strings.TrimSpace(clone.TransactionID)
	if clone.TransactionID == "" || len(clone.TransactionID) > MaxTransactionIDLen {
		return nil, ErrInvalidTransactionID
	}
	if clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !clone.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if !clone.Kind.Valid() {
		return nil, ErrMissingTokenMint
	}
	if clone.Kind == ValueToken {
		mint, err := NormalizeMint(clone.TokenMint)
		if err != nil {
			return nil, err
		}
		clone.TokenMint = mint
	}
	if (clone.QualityScore == nil) != (clone.RefundPercentage == nil) {
		return nil, ErrInvalidRefundPercentage
	}
	if len(clone.Submissions) > MaxOracleSubmissions {
		return nil, ErrMaxOraclesReached
	}
	return clone, nil
}

// Resolution captures the outcome of a dispute resolution: the stored escrow
// plus the fund split and the evidence that produced it.
type Resolution struct {
	Escrow           *Escrow
	QualityScore     uint8
	RefundPercentage uint8
	RefundAmount     *big.Int
	PaymentAmount    *big.Int
	Oracles          [][32]byte
	Scores           []uint8
}
