package renderer

// State is the handler's per-request lifecycle position.
type State int

const (
	StateIdle           State = iota // StateIdle waits for a request.
	StateValidating                  // StateValidating checks origin, tag and required fields.
	StateConstructing                // StateConstructing runs the document builder.
	StateRepliedSuccess              // StateRepliedSuccess sent PDF_GENERATED.
	StateRepliedFailure              // StateRepliedFailure sent PDF_CRASH_REPORT.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateConstructing:
		return "constructing"
	case StateRepliedSuccess:
		return "replied_success"
	case StateRepliedFailure:
		return "replied_failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a request.
func (s State) Terminal() bool {
	return s == StateRepliedSuccess || s == StateRepliedFailure
}
