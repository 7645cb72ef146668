package cli

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/beam-cloud/bucketmount/pkg/types"
)

// FormatError converts an error to a human-readable message.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	var spawnErr *types.SpawnError
	if errors.As(err, &spawnErr) && errors.Is(spawnErr.Err, exec.ErrNotFound) {
		return fmt.Sprintf("%s was not found in PATH", spawnErr.Command)
	}

	return cleanErrorMessage(err.Error())
}

// GetErrorSuggestions returns helpful suggestions for an error
func GetErrorSuggestions(err error) []string {
	if err == nil {
		return nil
	}

	var spawnErr *types.SpawnError
	var remoteErr *types.RemoteCreationError
	var dirErr *types.DirectoryCreationError
	var apiErr *APIError

	switch {
	case types.IsProfileNotFound(err):
		return []string{
			"List saved profiles: " + CodeStyle.Render("bucketmount profile list"),
			"Create one: " + CodeStyle.Render("bucketmount profile add <name> --endpoint <url> --bucket <bucket> --mount-point <path>"),
		}
	case types.IsAlreadyActive(err):
		return []string{
			"Unmount first: " + CodeStyle.Render("bucketmount unmount"),
		}
	case types.IsNotMounted(err):
		return []string{
			"Check the current state: " + CodeStyle.Render("bucketmount status"),
		}
	case types.IsValidation(err):
		return []string{
			"Inspect the profile: " + CodeStyle.Render("bucketmount profile show <name>"),
		}
	case errors.As(err, &spawnErr):
		return []string{
			"Install rclone: " + CodeStyle.Render("https://rclone.org/install/"),
			"Or point at the binary with " + CodeStyle.Render("rclone.binary") + " in the config file",
		}
	case errors.As(err, &remoteErr):
		return []string{
			"Check that the endpoint URL and credentials are correct",
			"Run " + CodeStyle.Render("bucketmount check") + " to verify rclone works",
		}
	case errors.As(err, &dirErr):
		return []string{
			"Check permissions on the parent directory of the mount point",
		}
	case errors.As(err, &apiErr) && apiErr.Unreachable:
		return []string{
			"Start the control API: " + CodeStyle.Render("bucketmount serve"),
			"Verify " + CodeStyle.Render("api.host") + " and " + CodeStyle.Render("api.port") + " in the config file",
		}
	}
	return nil
}

// cleanErrorMessage cleans up common error message patterns
func cleanErrorMessage(msg string) string {
	msg = strings.TrimPrefix(msg, "error: ")
	msg = strings.TrimPrefix(msg, "Error: ")

	// For deeply nested errors, keep the first and last parts
	if parts := strings.Split(msg, ": "); len(parts) > 3 {
		msg = parts[0] + ": " + parts[len(parts)-1]
	}
	return msg
}

// PrintFormattedError prints an error with styling and optional suggestions
func PrintFormattedError(title string, err error) {
	fmt.Fprintln(stdout)
	PrintErrorMsg(title)

	if err != nil {
		fmt.Fprintf(stdout, "  %s\n", DimStyle.Render(FormatError(err)))

		if suggestions := GetErrorSuggestions(err); len(suggestions) > 0 {
			PrintSuggestions("Suggestions:", suggestions)
		}
	}
	fmt.Fprintln(stdout)
}
