package pipeline

// State is a step of a job's lifecycle.
type State string

const (
	StateDiscovering State = "DISCOVERING_FORMATS"
	StateSelecting   State = "AWAITING_SELECTION"
	StateDownloading State = "DOWNLOADING"
	StateMerging     State = "MERGING"
	StateRecording   State = "RECORDING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Terminal reports whether no further transition leaves s. FAILED is only
// terminal once the job has no retries left, which the coordinator decides.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is one state change of a job. From is empty for the first one.
type Transition struct {
	URL     string
	From    State
	To      State
	Attempt int
	Err     error
}
