package domain

// AllowedTransitions maps a stage to the stages this pipeline may move it to.
// LIVE is terminal here.
var AllowedTransitions = map[Stage][]Stage{
	StageScoping:      {StageImplementing},
	StageImplementing: {StageLive},
	StageLive:         {},
}

func CanTransition(from, to Stage) bool {
	allowed, exists := AllowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to Stage) error {
	if !CanTransition(from, to) {
		return NewInvalidTransitionError(from, to)
	}
	return nil
}

// PreviousStage returns the only stage that can move into to.
func PreviousStage(to Stage) (Stage, bool) {
	for from, targets := range AllowedTransitions {
		for _, t := range targets {
			if t == to {
				return from, true
			}
		}
	}
	return "", false
}

var stageOrder = map[Stage]int{
	StageScoping:      0,
	StageImplementing: 1,
	StageLive:         2,
}

// Precedes reports whether s comes strictly before other in the pipeline. Unknown
// stages precede nothing.
func (s Stage) Precedes(other Stage) bool {
	a, ok := stageOrder[s]
	b, ok2 := stageOrder[other]
	return ok && ok2 && a < b
}
