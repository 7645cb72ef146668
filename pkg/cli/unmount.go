package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/spf13/cobra"
)

const unmountPollInterval = 100 * time.Millisecond

var unmountViaAPI bool

var unmountCmd = &cobra.Command{
	Use:   "unmount",
	Short: "Unmount the active bucket",
	Long: `Stop the active mount.

A foreground 'bucketmount mount' is asked to unmount through its pid file and
this command waits for it to exit. With --api, or when no foreground mount is
running, the control API is asked instead.`,
	Aliases: []string{"umount", "stop"},
	Args:    cobra.NoArgs,
	RunE:    runUnmount,
}

func init() {
	unmountCmd.Flags().BoolVar(&unmountViaAPI, "api", false, "Ask the control API to unmount")
	rootCmd.AddCommand(unmountCmd)
}

func runUnmount(cmd *cobra.Command, args []string) error {
	if !unmountViaAPI {
		if rec := readPID(); rec.PID != 0 && process.Exists(rec.PID) {
			return unmountLocal(rec)
		}
	}

	client := NewClient(appConfig.API)
	if err := client.Unmount(cmd.Context()); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unreachable && !unmountViaAPI {
			return &types.NotMountedError{}
		}
		return err
	}
	if PrintJSON(map[string]string{"status": "unmounting"}) {
		return nil
	}
	PrintSuccess("Unmount requested")
	return nil
}

// unmountLocal interrupts the foreground mount process, which shuts rclone
// down, and waits for it to exit.
func unmountLocal(rec pidRecord) error {
	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return err
	}

	if !IsJSONOutput() {
		PrintInfof("Unmounting %s...", CodeStyle.Render(rec.Remote))
	}
	if err := proc.Signal(syscall.SIGINT); err != nil {
		return err
	}

	if !waitForExit(context.Background(), rec.PID, unmountWait()) {
		return fmt.Errorf("mount process %d is still running: %w", rec.PID, process.ErrProcessUnkillable)
	}

	if PrintJSON(map[string]any{"status": "unmounted", "pid": rec.PID, "profile": rec.Profile}) {
		return nil
	}
	PrintSuccess("Unmounted")
	return nil
}

// unmountWait covers the full graceful then forced shutdown of the mount process.
func unmountWait() time.Duration {
	grace := appConfig.Supervisor.GracePeriod
	if grace <= 0 {
		grace = process.DefaultGracePeriod
	}
	kill := appConfig.Supervisor.KillTimeout
	if kill <= 0 {
		kill = process.DefaultKillTimeout
	}
	return grace + kill + time.Second
}

func waitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(unmountPollInterval)
	defer ticker.Stop()
	for {
		if !process.Exists(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
