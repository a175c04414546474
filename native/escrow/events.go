package escrow

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"x402resolve/core/types"
)

const (
	EventTypeInitialized         = "escrow.initialized"
	EventTypeReleased            = "escrow.released"
	EventTypeDisputed            = "escrow.disputed"
	EventTypeResolved            = "escrow.resolved"
	EventTypeMultiOracleResolved = "escrow.multi_oracle_resolved"
)

func attrAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func attrKey(key [32]byte) string {
	return hex.EncodeToString(key[:])
}

func attrAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewInitializedEvent describes a freshly funded escrow.
func NewInitializedEvent(esc *Escrow) *types.Event {
	if esc == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"transactionId": esc.TransactionID,
			"agent":         attrAddress(esc.Agent),
			"provider":      attrAddress(esc.Provider),
			"amount":        attrAmount(esc.Amount),
			"kind":          esc.Kind.String(),
			"expiresAt":     fmt.Sprintf("%d", esc.ExpiresAt),
		},
	}
}

// NewReleasedEvent describes a full release to the provider.
func NewReleasedEvent(esc *Escrow, now int64) *types.Event {
	if esc == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeReleased,
		Attributes: map[string]string{
			"transactionId": esc.TransactionID,
			"provider":      attrAddress(esc.Provider),
			"amount":        attrAmount(esc.Amount),
			"releasedAt":    fmt.Sprintf("%d", now),
		},
	}
}

// NewDisputedEvent describes a dispute filing including the charged cost.
func NewDisputedEvent(esc *Escrow, cost *big.Int, now int64) *types.Event {
	if esc == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeDisputed,
		Attributes: map[string]string{
			"transactionId": esc.TransactionID,
			"agent":         attrAddress(esc.Agent),
			"disputeCost":   attrAmount(cost),
			"disputedAt":    fmt.Sprintf("%d", now),
		},
	}
}

func resolutionAttributes(res *Resolution) map[string]string {
	attrs := map[string]string{
		"transactionId":    res.Escrow.TransactionID,
		"qualityScore":     fmt.Sprintf("%d", res.QualityScore),
		"refundPercentage": fmt.Sprintf("%d", res.RefundPercentage),
		"refundAmount":     attrAmount(res.RefundAmount),
		"paymentAmount":    attrAmount(res.PaymentAmount),
	}
	return attrs
}

// NewResolvedEvent describes a single-oracle or feed resolution.
func NewResolvedEvent(res *Resolution) *types.Event {
	if res == nil || res.Escrow == nil {
		return nil
	}
	attrs := resolutionAttributes(res)
	if len(res.Oracles) > 0 {
		attrs["oracle"] = attrKey(res.Oracles[0])
	}
	return &types.Event{Type: EventTypeResolved, Attributes: attrs}
}

// NewMultiOracleResolvedEvent describes a consensus resolution including the
// participating oracle set.
func NewMultiOracleResolvedEvent(res *Resolution) *types.Event {
	if res == nil || res.Escrow == nil {
		return nil
	}
	attrs := resolutionAttributes(res)
	keys := make([]string, 0, len(res.Oracles))
	for _, key := range res.Oracles {
		keys = append(keys, attrKey(key))
	}
	attrs["oracles"] = strings.Join(keys, ",")
	attrs["oracleCount"] = fmt.Sprintf("%d", len(res.Oracles))
	return &types.Event{Type: EventTypeMultiOracleResolved, Attributes: attrs}
}
