package loyalty

// PointsPerGlobalNumber is the convertible-point cost of one global number.
// The balance is reduced by exactly this amount per issuance.
const PointsPerGlobalNumber int64 = 1_500

// StepUpTier pairs a multiplier with the points paid to the holder of the
// divided number.
type StepUpTier struct {
	Multiplier uint64
	Reward     int64
}

// StepUpTable is the fixed multiplier/reward schedule. When number N is
// issued, the holder of N/Multiplier (when it divides evenly and exists)
// earns Reward points.
var StepUpTable = []StepUpTier{
	{Multiplier: 5, Reward: 500},
	{Multiplier: 25, Reward: 1_500},
	{Multiplier: 125, Reward: 3_000},
	{Multiplier: 500, Reward: 30_000},
	{Multiplier: 2_500, Reward: 160_000},
}

// RippleAmount maps a step-up payout to the referrer reward. Bands are
// inclusive on the lower bound; amounts below the first band pay nothing.
func RippleAmount(stepUpAmount int64) int64 {
	switch {
	case stepUpAmount >= 160_000:
		return 1_500
	case stepUpAmount >= 30_000:
		return 700
	case stepUpAmount >= 3_000:
		return 150
	case stepUpAmount >= 1_500:
		return 100
	case stepUpAmount >= 500:
		return 50
	default:
		return 0
	}
}
