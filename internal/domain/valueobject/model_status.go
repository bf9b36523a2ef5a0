package valueobject

import "fmt"

// ModelStatus is the lifecycle state of a trained model version.
type ModelStatus struct {
	value string
}

var (
	ModelStatusUntrained  = ModelStatus{value: "UNTRAINED"}
	ModelStatusTrained    = ModelStatus{value: "TRAINED"}
	ModelStatusLoaded     = ModelStatus{value: "LOADED"}
	ModelStatusSuperseded = ModelStatus{value: "SUPERSEDED"}
	ModelStatusFailed     = ModelStatus{value: "FAILED"}
)

// ModelStatusFromString reconstructs a ModelStatus from its string form.
func ModelStatusFromString(s string) (ModelStatus, error) {
	switch s {
	case "UNTRAINED":
		return ModelStatusUntrained, nil
	case "TRAINED":
		return ModelStatusTrained, nil
	case "LOADED":
		return ModelStatusLoaded, nil
	case "SUPERSEDED":
		return ModelStatusSuperseded, nil
	case "FAILED":
		return ModelStatusFailed, nil
	default:
		return ModelStatus{}, fmt.Errorf("invalid model status: %s", s)
	}
}

// CanTransitionTo reports whether moving from s to next is a legal step of
// Untrained -> Trained -> Loaded -> Superseded. Any non-terminal state may fail.
func (s ModelStatus) CanTransitionTo(next ModelStatus) bool {
	switch next {
	case ModelStatusTrained:
		return s == ModelStatusUntrained
	case ModelStatusLoaded:
		return s == ModelStatusTrained
	case ModelStatusSuperseded:
		return s == ModelStatusLoaded || s == ModelStatusTrained
	case ModelStatusFailed:
		return s == ModelStatusUntrained
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s ModelStatus) IsTerminal() bool {
	return s == ModelStatusSuperseded || s == ModelStatusFailed
}

func (s ModelStatus) String() string {
	return s.value
}

func (s ModelStatus) IsZero() bool {
	return s.value == ""
}
