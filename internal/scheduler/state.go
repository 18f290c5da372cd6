package scheduler

type State int

const (
	StateValidating State = iota
	StateSyncing
	StateSleeping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "Validating"
	case StateSyncing:
		return "Syncing"
	case StateSleeping:
		return "Sleeping"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// ExitCode is what the process should exit with once the loop has stopped.
type ExitCode int

const (
	ExitOK            ExitCode = 0
	ExitSourceMissing ExitCode = -1
)
