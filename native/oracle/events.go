package oracle

import (
	"encoding/hex"
	"strconv"

	"x402resolve/core/types"
)

const (
	EventTypeRegistryInitialized = "oracle.registry_initialized"
	EventTypeOracleAdded         = "oracle.added"
	EventTypeOracleRemoved       = "oracle.removed"
)

// NewRegistryInitializedEvent returns the canonical payload for registry
// creation.
func NewRegistryInitializedEvent(r *Registry) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["admin"] = hex.EncodeToString(r.Admin[:])
		attrs["minConsensus"] = strconv.FormatUint(uint64(r.MinConsensus), 10)
		attrs["maxScoreDeviation"] = strconv.FormatUint(uint64(r.MaxScoreDeviation), 10)
	}
	return &types.Event{Type: EventTypeRegistryInitialized, Attributes: attrs}
}

// NewOracleAddedEvent returns the canonical payload for a registry addition.
// Weight is surfaced here so operators can audit the stored configuration.
func NewOracleAddedEvent(r *Registry, key [32]byte, kind Kind, weight uint16) *types.Event {
	attrs := map[string]string{
		"oracle": hex.EncodeToString(key[:]),
		"kind":   kind.String(),
		"weight": strconv.FormatUint(uint64(weight), 10),
	}
	if r != nil {
		attrs["admin"] = hex.EncodeToString(r.Admin[:])
	}
	return &types.Event{Type: EventTypeOracleAdded, Attributes: attrs}
}

// NewOracleRemovedEvent returns the canonical payload for a registry removal.
func NewOracleRemovedEvent(r *Registry, key [32]byte) *types.Event {
	attrs := map[string]string{
		"oracle": hex.EncodeToString(key[:]),
	}
	if r != nil {
		attrs["admin"] = hex.EncodeToString(r.Admin[:])
	}
	return &types.Event{Type: EventTypeOracleRemoved, Attributes: attrs}
}
