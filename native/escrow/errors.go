package escrow

import "errors"

var (
	// Validation failures, rejected before any state mutation.
	ErrInvalidAmount           = errors.New("escrow: amount must be positive")
	ErrAmountTooLarge          = errors.New("escrow: amount exceeds maximum")
	ErrInvalidTimeLock         = errors.New("escrow: time lock must be between 1 hour and 30 days")
	ErrInvalidTransactionID    = errors.New("escrow: transaction id must be non-empty and at most 64 bytes")
	ErrInvalidQualityScore     = errors.New("escrow: quality score must be 0-100")
	ErrInvalidRefundPercentage = errors.New("escrow: refund percentage must be 0-100")

	// Authorization failures: the operation is legal in general but not for
	// this caller or at this time.
	ErrUnauthorized         = errors.New("escrow: unauthorized caller")
	ErrTimeLockNotExpired   = errors.New("escrow: time lock not expired")
	ErrDisputeWindowExpired = errors.New("escrow: dispute window expired")

	// State machine failures.
	ErrInvalidStatus  = errors.New("escrow: invalid status for operation")
	ErrEscrowNotFound = errors.New("escrow: escrow not found")
	ErrEscrowExists   = errors.New("escrow: transaction id already in use")
	ErrNilEscrow      = errors.New("escrow: nil escrow")

	// Consensus failures during multi-oracle resolution.
	ErrInsufficientOracleConsensus = errors.New("escrow: insufficient oracle consensus")
	ErrNoConsensusReached          = errors.New("escrow: oracle scores too divergent")
	ErrUnregisteredOracle          = errors.New("escrow: oracle not registered")
	ErrDuplicateOracleSubmission   = errors.New("escrow: duplicate oracle submission")
	ErrUnsupportedOracleType       = errors.New("escrow: oracle kind not supported for this resolution path")
	ErrMaxOraclesReached           = errors.New("escrow: too many oracle submissions")

	// Resource failures: funding or account-shape preconditions unmet.
	ErrInsufficientFunds        = errors.New("escrow: insufficient balance to fund escrow")
	ErrInsufficientDisputeFunds = errors.New("escrow: insufficient balance for dispute cost")
	ErrInsufficientReserve      = errors.New("escrow: amount below minimum storage reserve")
	ErrMissingTokenMint         = errors.New("escrow: token mint required for token escrows")
	ErrTokenMintMismatch        = errors.New("escrow: token mint mismatch")
	ErrMissingTokenAccount      = errors.New("escrow: no token balance for mint")

	// Arithmetic guard on the wide split computation.
	ErrArithmeticOverflow = errors.New("escrow: arithmetic overflow")

	// Engine wiring failures.
	ErrNilState    = errors.New("escrow: engine state not configured")
	ErrNilTreasury = errors.New("escrow: dispute fee treasury not configured")
	ErrNilRegistry = errors.New("escrow: oracle registry not initialised")
)
