package escrow

import (
	"errors"
	"math/big"
	"strings"
)

// MaxAgreementQueryLen bounds the stored scope query.
const MaxAgreementQueryLen = 128

var (
	// ErrInvalidAgreement marks malformed work agreement payloads.
	ErrInvalidAgreement = errors.New("escrow: invalid work agreement")
)

// WorkAgreement is a stored scope descriptor attached to an escrow. It is an
// audit record: nothing consults it to authorize an operation.
type WorkAgreement struct {
	TransactionID   string `json:"transactionId"`
	Query           string `json:"query"`
	RequiredFields  uint8  `json:"requiredFields"`
	MinRecords      uint32 `json:"minRecords"`
	MaxAgeDays      uint32 `json:"maxAgeDays"`
	MinQualityScore uint8  `json:"minQualityScore"`
	CreatedAt       int64  `json:"createdAt"`
}

// Validate ensures the agreement payload is well formed.
func (a *WorkAgreement) Validate() error {
	if a == nil {
		return ErrInvalidAgreement
	}
	if strings.TrimSpace(a.TransactionID) == "" || len(a.TransactionID) > MaxTransactionIDLen {
		return ErrInvalidTransactionID
	}
	if len(a.Query) > MaxAgreementQueryLen {
		return ErrInvalidAgreement
	}
	if a.MinQualityScore > 100 {
		return ErrInvalidQualityScore
	}
	return nil
}

// ProviderPenalties tracks strikes and suspension bookkeeping for a provider.
// Maintained on every resolution, never consulted for authorization.
type ProviderPenalties struct {
	Provider           [20]byte `json:"provider"`
	StrikeCount        uint8    `json:"strikeCount"`
	Suspended          bool     `json:"suspended"`
	SuspensionEnd      int64    `json:"suspensionEnd,omitempty"`
	TotalRefundsIssued *big.Int `json:"totalRefundsIssued"`
	PoorQualityCount   uint32   `json:"poorQualityCount"`
	CreatedAt          int64    `json:"createdAt"`
	LastUpdated        int64    `json:"lastUpdated"`
}

// Clone returns a deep copy of the penalty record.
func (p *ProviderPenalties) Clone() *ProviderPenalties {
	if p == nil {
		return nil
	}
	clone := *p
	if p.TotalRefundsIssued != nil {
		clone.TotalRefundsIssued = new(big.Int).Set(p.TotalRefundsIssued)
	} else {
		clone.TotalRefundsIssued = big.NewInt(0)
	}
	return &clone
}

// Suspension and strike policy constants.
const (
	poorQualityThreshold  uint8 = 30
	strikeRefundThreshold uint8 = 75
	suspensionStrikes     uint8 = 3
	suspensionSeconds           = 7 * 86400
)

// recordOutcome folds one resolution into the penalty counters: cumulative
// refunds always accrue, poor quality counts below the threshold, and high
// refunds earn strikes that eventually flag a suspension window.
func (p *ProviderPenalties) recordOutcome(qualityScore, refundPercentage uint8, refundAmount *big.Int, now int64) {
	if p.TotalRefundsIssued == nil {
		p.TotalRefundsIssued = big.NewInt(0)
	}
	if refundAmount != nil && refundAmount.Sign() > 0 {
		p.TotalRefundsIssued = new(big.Int).Add(p.TotalRefundsIssued, refundAmount)
	}
	if qualityScore < poorQualityThreshold {
		p.PoorQualityCount++
	}
	if refundPercentage >= strikeRefundThreshold {
		p.StrikeCount++
		if p.StrikeCount >= suspensionStrikes && !p.Suspended {
			p.Suspended = true
			p.SuspensionEnd = now + suspensionSeconds
		}
	}
	p.LastUpdated = now
}
