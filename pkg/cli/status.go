package cli

import (
	"fmt"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/mount"
	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/spf13/cobra"
)

type StatusInfo struct {
	Running    bool           `json:"running"`
	Source     string         `json:"source"`
	State      string         `json:"state"`
	PID        int            `json:"pid,omitempty"`
	Profile    string         `json:"profile,omitempty"`
	Remote     string         `json:"remote,omitempty"`
	MountPoint string         `json:"mount_point,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Stats      *process.Stats `json:"stats,omitempty"`
}

var statusViaAPI bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status",
	Long:  `Show the state of the foreground mount, or of the control API's supervisor with --api.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusViaAPI, "api", false, "Query the control API")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status StatusInfo
	if statusViaAPI {
		st, err := NewClient(appConfig.API).Status(cmd.Context())
		if err != nil {
			return err
		}
		status = statusFromSupervisor(st)
	} else {
		status = statusFromPID(readPID())
	}

	if PrintJSON(status) {
		return nil
	}
	printStatus(status)
	return nil
}

func statusFromPID(rec pidRecord) StatusInfo {
	status := StatusInfo{Source: "pidfile", State: mount.Idle.String()}
	if rec.PID == 0 || !process.Exists(rec.PID) {
		return status
	}

	started := rec.StartedAt
	status.Running = true
	status.State = "running"
	status.PID = rec.PID
	status.Profile = rec.Profile
	status.Remote = rec.Remote
	status.MountPoint = rec.MountPoint
	status.StartedAt = &started
	if stats, err := process.StatsFor(rec.PID); err == nil {
		status.Stats = &stats
	}
	return status
}

func statusFromSupervisor(st mount.Status) StatusInfo {
	return StatusInfo{
		Running:    st.State != mount.Idle,
		Source:     "api",
		State:      st.State.String(),
		PID:        st.PID,
		Profile:    st.Profile,
		Remote:     st.Remote,
		MountPoint: st.MountPoint,
		StartedAt:  st.StartedAt,
		LastError:  st.LastError,
		Stats:      st.Stats,
	}
}

func printStatus(status StatusInfo) {
	fmt.Fprintln(stdout)
	if status.Running {
		PrintKeyValue("Status", SuccessStyle.Render(status.State))
	} else {
		PrintKeyValue("Status", DimStyle.Render(status.State))
	}

	if status.Profile != "" {
		PrintKeyValue("Profile", status.Profile)
	}
	if status.Remote != "" {
		PrintKeyValue("Remote", status.Remote)
	}
	if status.MountPoint != "" {
		PrintKeyValue("Mount", status.MountPoint)
	}
	if status.PID != 0 {
		PrintKeyValue("PID", fmt.Sprintf("%d", status.PID))
	}
	if status.StartedAt != nil {
		PrintKeyValue("Started", FormatRelativeTime(*status.StartedAt))
	}
	if status.Stats != nil {
		PrintKeyValue("Memory", FormatBytes(status.Stats.RSS))
		PrintKeyValue("CPU", fmt.Sprintf("%.1f%%", status.Stats.CPUPercent))
	}
	if status.LastError != "" {
		PrintKeyValueStyled("Last error", Truncate(status.LastError, 120), ErrorStyle)
	}
	fmt.Fprintln(stdout)

	if !status.Running {
		PrintHint("Run 'bucketmount mount <profile>' to mount a bucket")
	}
}
