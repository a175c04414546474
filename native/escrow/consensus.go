package escrow

import "sort"

// ConsensusScore reduces independently verified oracle scores into one
// consensus quality score.
//
// Two scores yield their truncated arithmetic mean. With three or more, the
// median (index len/2 of the ascending sort) anchors an outlier filter:
// scores further than maxDeviation from the median are discarded, at least
// two must survive, and the result is the median of the surviving subset.
// This tolerates one faulty oracle among three or more without letting it
// skew the result, using only integer arithmetic.
func ConsensusScore(scores []uint8, maxDeviation uint8) (uint8, error) {
	if len(scores) < 2 {
		return 0, ErrInsufficientOracleConsensus
	}

	sorted := append([]uint8(nil), scores...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if len(sorted) == 2 {
		return uint8((uint16(sorted[0]) + uint16(sorted[1])) / 2), nil
	}

	median := sorted[len(sorted)/2]
	valid := make([]uint8, 0, len(sorted))
	for _, score := range sorted {
		diff := score - median
		if score < median {
			diff = median - score
		}
		if diff <= maxDeviation {
			valid = append(valid, score)
		}
	}
	if len(valid) < 2 {
		return 0, ErrNoConsensusReached
	}
	return valid[len(valid)/2], nil
}
