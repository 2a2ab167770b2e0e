package reconciler

// Phase is the orchestrator's input-processing state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDecoding
	PhaseApplying
	PhaseIndexing
)

func (p Phase) String() string {
	switch p {
	case PhaseDecoding:
		return "decoding"
	case PhaseApplying:
		return "applying"
	case PhaseIndexing:
		return "indexing"
	default:
		return "idle"
	}
}
