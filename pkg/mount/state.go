package mount

import "fmt"

// State represents the current state of the mount lifecycle.
type State int

const (
	Idle           State = iota // Not mounted, no activity
	CreatingRemote              // rclone remote being configured
	Mounting                    // Mount process running, not yet confirmed
	Mounted                     // Mount process survived the confirmation window
	Unmounting                  // Shutdown requested, waiting for the process to exit
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CreatingRemote:
		return "creating-remote"
	case Mounting:
		return "mounting"
	case Mounted:
		return "mounted"
	case Unmounting:
		return "unmounting"
	default:
		return "unknown"
	}
}

// HasProcess reports whether a mount process is owned in this state.
func (s State) HasProcess() bool {
	return s == Mounting || s == Mounted || s == Unmounting
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, candidate := range []State{Idle, CreatingRemote, Mounting, Mounted, Unmounting} {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown mount state %q", b)
}
