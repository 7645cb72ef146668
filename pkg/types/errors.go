package types

import (
	"errors"
	"fmt"
)

// AlreadyActiveError is returned when a mount is requested while the supervisor is not idle
type AlreadyActiveError struct {
	State string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("a mount is already active (%s), unmount first", e.State)
}

// NotMountedError is returned when an unmount finds nothing to stop
type NotMountedError struct {
	State string
}

func (e *NotMountedError) Error() string {
	if e.State == "" || e.State == "idle" {
		return "no active mount to unmount"
	}
	return fmt.Sprintf("no active mount to unmount (%s)", e.State)
}

// RemoteCreationError is returned when the create-remote helper exits non-zero
type RemoteCreationError struct {
	Remote string
	Code   int
	Output string
}

func (e *RemoteCreationError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("rclone config creation for %s failed (exit code %d): %s", e.Remote, e.Code, e.Output)
	}
	return fmt.Sprintf("rclone config creation for %s failed (exit code %d)", e.Remote, e.Code)
}

// DirectoryCreationError is returned when the local mount point cannot be created
type DirectoryCreationError struct {
	Path string
	Err  error
}

func (e *DirectoryCreationError) Error() string {
	return fmt.Sprintf("failed to create mount point %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreationError) Unwrap() error { return e.Err }

// SpawnError is returned when a backend binary cannot be launched at all
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// AbnormalExitError describes a mount process that exited without an unmount request
type AbnormalExitError struct {
	Code      int
	Diagnosis string
}

func (e *AbnormalExitError) Error() string {
	return "mount process failed: " + e.Diagnosis
}

// ValidationError is returned for malformed mount configurations
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProfileNotFoundError is returned when a named profile does not exist
type ProfileNotFoundError struct {
	Name string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile not found: %s", e.Name)
}

// IsAlreadyActive checks if err is an AlreadyActiveError
func IsAlreadyActive(err error) bool {
	var target *AlreadyActiveError
	return errors.As(err, &target)
}

// IsNotMounted checks if err is a NotMountedError
func IsNotMounted(err error) bool {
	var target *NotMountedError
	return errors.As(err, &target)
}

// IsValidation checks if err is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsProfileNotFound checks if err is a ProfileNotFoundError
func IsProfileNotFound(err error) bool {
	var target *ProfileNotFoundError
	return errors.As(err, &target)
}
