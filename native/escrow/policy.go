package escrow

// RefundFromQuality maps a quality score to a refund percentage via the fixed
// tiered schedule: below 50 refunds everything, 80 and above refunds nothing.
func RefundFromQuality(qualityScore uint8) uint8 {
	switch {
	case qualityScore <= 49:
		return 100
	case qualityScore <= 64:
		return 75
	case qualityScore <= 79:
		return 35
	default:
		return 0
	}
}
