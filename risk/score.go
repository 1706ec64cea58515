package risk

// Score bounds and the base used when a project has no prior assessment.
const (
	MinScore  = 1
	MaxScore  = 25
	BaseScore = 10
)

// Monitoring input thresholds. The four trigger inputs add 2 at or above
// their threshold and subtract 1 below it; block hours only ever add.
const (
	timelineDeviationThreshold  = 20
	hoursToFixThreshold         = 3
	functionalFitThreshold      = 3
	featureAdjustmentsThreshold = 3
	blockHoursThreshold         = 10
)

// Inputs carries the optional monitoring readings collected for a delivery.
// A nil field means the reading was not supplied and is skipped entirely; a
// zero value is a real below-threshold reading and counts as a reduction.
type Inputs struct {
	TimelineDeviation  *float64 // percent deviation from plan
	HoursToFix         *float64
	FunctionalFit      *float64
	FeatureAdjustments *float64
	BlockHours         *float64
}

// Score applies the monitoring inputs to the base score. The running score is
// floored at MinScore after every reduction and capped at MaxScore at the end.
func Score(base int, in Inputs) int {
	score := base
	if score <= 0 {
		score = BaseScore
	}

	score = applyTrigger(score, in.TimelineDeviation, timelineDeviationThreshold)
	score = applyTrigger(score, in.HoursToFix, hoursToFixThreshold)
	score = applyTrigger(score, in.FunctionalFit, functionalFitThreshold)
	score = applyTrigger(score, in.FeatureAdjustments, featureAdjustmentsThreshold)

	if in.BlockHours != nil && *in.BlockHours >= blockHoursThreshold {
		score++
	}

	if score > MaxScore {
		score = MaxScore
	}
	return score
}

func applyTrigger(score int, value *float64, threshold float64) int {
	switch {
	case value == nil:
		return score
	case *value >= threshold:
		return score + 2
	default:
		score--
		if score < MinScore {
			score = MinScore
		}
		return score
	}
}

// AssessedDelivery is the slice of a delivery the project aggregator needs.
type AssessedDelivery struct {
	Score  int
	Budget float64
}

// WeightedAverage computes the budget-weighted average score over assessed
// deliveries, rounded to the nearest integer. Deliveries without a positive
// budget or score carry no weight. The second return is false when nothing
// contributed, in which case the project risk must stay untouched.
func WeightedAverage(deliveries []AssessedDelivery) (int, bool) {
	var weighted, weight float64
	for _, d := range deliveries {
		if d.Score <= 0 || d.Budget <= 0 {
			continue
		}
		weighted += float64(d.Score) * d.Budget
		weight += d.Budget
	}
	if weight == 0 {
		return 0, false
	}
	avg := weighted / weight
	return int(avg + 0.5), true
}
