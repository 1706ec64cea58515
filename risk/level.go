package risk

// Level is one of the six ordered risk classifications, plus the unassessed
// placeholder used by freshly created projects.
type Level string

const (
	LevelNone             Level = "No Assessment"
	LevelVeryConservative Level = "Muy conservador"
	LevelConservative     Level = "Conservador"
	LevelModerate         Level = "Moderado"
	LevelModerateHigh     Level = "Moderado - alto"
	LevelAggressive       Level = "Agresivo"
	LevelVeryAggressive   Level = "Muy Agresivo"
)

// levels holds the assessable classifications in ascending severity order.
var levels = []Level{
	LevelVeryConservative,
	LevelConservative,
	LevelModerate,
	LevelModerateHigh,
	LevelAggressive,
	LevelVeryAggressive,
}

// Levels returns the six classifications ordered from least to most severe.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// Classify maps a score onto its classification bucket. Bucket upper bounds
// are inclusive: <=3, <=6, <=10, <=14, <=17, else Muy Agresivo.
func Classify(score int) Level {
	switch {
	case score <= 3:
		return LevelVeryConservative
	case score <= 6:
		return LevelConservative
	case score <= 10:
		return LevelModerate
	case score <= 14:
		return LevelModerateHigh
	case score <= 17:
		return LevelAggressive
	default:
		return LevelVeryAggressive
	}
}

// LevelIndex returns the ordinal position of a classification, or -1 for
// LevelNone and unknown values.
func LevelIndex(l Level) int {
	for i, candidate := range levels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Direction describes how a classification moved between two assessments.
type Direction string

const (
	DirectionIncreased  Direction = "Increased"
	DirectionDecreased  Direction = "Decreased"
	DirectionMaintained Direction = "Maintained"
)

// DirectionOf compares two classifications by their ordinal position.
func DirectionOf(previous, next Level) Direction {
	prevIdx, nextIdx := LevelIndex(previous), LevelIndex(next)
	switch {
	case nextIdx > prevIdx:
		return DirectionIncreased
	case nextIdx < prevIdx:
		return DirectionDecreased
	default:
		return DirectionMaintained
	}
}
