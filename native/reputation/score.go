package reputation

// Scoring constants. The derived score is bounded to [0, MaxScore] and a
// fresh entity starts at BaseScore, a neutral prior.
const (
	BaseScore uint16 = 500
	MaxScore  uint16 = 1000
)

// ComputeScore derives the bounded reputation score from the stored counters:
// a transaction-volume component (capped 500), a dispute-win-rate component
// (capped 300, neutral 150 when no disputes were filed) and a quality
// component (capped 200). All arithmetic is integer and deterministic.
func ComputeScore(r *EntityReputation) uint16 {
	if r == nil || r.TotalTransactions == 0 {
		return BaseScore
	}

	txCount := r.TotalTransactions
	if txCount > 100 {
		txCount = 100
	}
	txComponent := uint16(txCount) * 5

	var disputeComponent uint16
	if r.DisputesFiled > 0 {
		winRate := r.DisputesWon * 100 / r.DisputesFiled
		disputeComponent = uint16(winRate) * 3
		if disputeComponent > 300 {
			disputeComponent = 300
		}
	} else {
		disputeComponent = 150
	}

	qualityComponent := uint16(r.AverageQuality) * 2
	if qualityComponent > 200 {
		qualityComponent = 200
	}

	total := txComponent + disputeComponent + qualityComponent
	if total > MaxScore {
		total = MaxScore
	}
	return total
}

// DisputeCostMultiplier scales the base dispute-filing cost with the entity's
// historical dispute rate. A fresh entity pays the base cost.
func DisputeCostMultiplier(r *EntityReputation) uint64 {
	if r == nil || r.TotalTransactions == 0 {
		return 1
	}
	rate := r.DisputesFiled * 100 / r.TotalTransactions
	switch {
	case rate <= 20:
		return 1
	case rate <= 40:
		return 2
	case rate <= 60:
		return 5
	default:
		return 10
	}
}

// applyOutcome folds one resolution into the counters using the party's
// perceived quality and classifying the outcome by refund percentage. The
// won/partial/lost thresholds are mirrored between roles: an agent wins at
// refund >= 75 while a provider wins at refund <= 25.
func (r *EntityReputation) applyOutcome(perceivedQuality, refundPercentage uint8, role Role) {
	r.TotalTransactions++
	total := uint64(r.AverageQuality)*(r.TotalTransactions-1) + uint64(perceivedQuality)
	r.AverageQuality = uint8(total / r.TotalTransactions)

	switch role {
	case RoleAgent:
		switch {
		case refundPercentage >= 75:
			r.DisputesWon++
		case refundPercentage >= 25:
			r.DisputesPartial++
		default:
			r.DisputesLost++
		}
	default:
		switch {
		case refundPercentage <= 25:
			r.DisputesWon++
		case refundPercentage <= 75:
			r.DisputesPartial++
		default:
			r.DisputesLost++
		}
	}

	r.Score = ComputeScore(r)
}
