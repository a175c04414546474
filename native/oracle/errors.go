package oracle

import "errors"

var (
	// ErrInvalidSignature marks any mismatch between a signature instruction
	// and the submission it is supposed to authenticate.
	ErrInvalidSignature = errors.New("oracle: invalid signature")
	// ErrRegistryNotFound is returned when no registry has been initialised.
	ErrRegistryNotFound = errors.New("oracle: registry not initialised")
	// ErrRegistryExists rejects re-initialisation of the singleton registry.
	ErrRegistryExists = errors.New("oracle: registry already initialised")
	// ErrUnauthorized marks registry mutations by anyone but the admin.
	ErrUnauthorized = errors.New("oracle: unauthorized registry caller")
	// ErrMaxOraclesReached caps the registry at MaxOracles entries.
	ErrMaxOraclesReached = errors.New("oracle: maximum oracles reached")
	// ErrDuplicateOracle rejects a key already present in the registry.
	ErrDuplicateOracle = errors.New("oracle: oracle already registered")
	// ErrOracleNotFound marks removal of an unregistered key.
	ErrOracleNotFound = errors.New("oracle: oracle not found")
	// ErrInvalidOracleWeight rejects zero weights.
	ErrInvalidOracleWeight = errors.New("oracle: weight must be positive")
	// ErrInvalidConsensusThreshold rejects min consensus below two.
	ErrInvalidConsensusThreshold = errors.New("oracle: min consensus must be at least 2")
	// ErrInvalidScoreDeviation rejects deviation bounds above fifty.
	ErrInvalidScoreDeviation = errors.New("oracle: max score deviation out of range")
	// ErrInvalidAttestation marks a malformed or missing feed record.
	ErrInvalidAttestation = errors.New("oracle: invalid feed attestation")
	// ErrStaleAttestation marks a feed record outside the freshness window.
	ErrStaleAttestation = errors.New("oracle: feed attestation is stale")
	// ErrQualityScoreMismatch marks a feed value that disagrees with the
	// submitted quality score.
	ErrQualityScoreMismatch = errors.New("oracle: feed value does not match submitted score")
)
