package xrvideo

// PipelineState is the lifecycle state of the decode pipeline: [Idle],
// [Starting], [Running] or [Stopping].
type PipelineState uint8

// Returns a string representation of the pipeline state
// ("Idle", "Starting", "Running", "Stopping", "Unknown").
func (s PipelineState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

const (
	Idle PipelineState = iota
	Starting
	Running
	Stopping
)
