package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/mount"
	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/beam-cloud/bucketmount/pkg/rclone"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	mountPointOverride string
	bucketOverride     string
	mountViaAPI        bool
)

var mountCmd = &cobra.Command{
	Use:   "mount <profile>",
	Short: "Mount a bucket from a saved profile",
	Long: `Mount the bucket of a saved profile onto its local mount point.

The mount runs in the foreground: progress is printed as it happens and the
command returns once the mount ends. Ctrl+C unmounts gracefully; pressing it
a second time exits immediately.

With --api the mount is requested from a running 'bucketmount serve' instead.`,
	Example: `  bucketmount mount ceph
  bucketmount mount ceph --mount-point /mnt/data --bucket archive
  bucketmount mount ceph --api`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().StringVarP(&mountPointOverride, "mount-point", "m", "", "Override the profile's mount point")
	mountCmd.Flags().StringVarP(&bucketOverride, "bucket", "b", "", "Override the profile's bucket")
	mountCmd.Flags().BoolVar(&mountViaAPI, "api", false, "Ask the control API to mount instead of mounting in this process")
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	if mountViaAPI {
		return mountRemote(cmd.Context(), args[0])
	}

	store, err := openProfiles()
	if err != nil {
		return err
	}
	cfg, err := store.Get(args[0])
	if err != nil {
		return err
	}
	if mountPointOverride != "" {
		cfg.MountPoint = mountPointOverride
	}
	if bucketOverride != "" {
		cfg.BucketName = bucketOverride
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if rec := readPID(); rec.PID != 0 && rec.PID != os.Getpid() && process.Exists(rec.PID) {
		return &types.AlreadyActiveError{State: fmt.Sprintf("pid %d, profile %s", rec.PID, rec.Profile)}
	}

	// Supervisor reports are rendered as events; its logs only add noise here.
	if !debugLogs && !appConfig.DebugMode {
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	return superviseMount(cmd.Context(), cfg, signals)
}

func mountRemote(ctx context.Context, profile string) error {
	client := NewClient(appConfig.API)
	if err := client.Mount(ctx, profile); err != nil {
		return err
	}
	if PrintJSON(map[string]string{"profile": profile, "status": "accepted"}) {
		return nil
	}
	PrintSuccessf("Mount of %s requested", CodeStyle.Render(profile))
	PrintHint("Run 'bucketmount status --api' to follow progress")
	return nil
}

// exit ends the process on a second interrupt. Tests replace it.
var exit = os.Exit

// superviseMount runs a supervisor for a single mount and blocks until it
// returns to idle. The first signal unmounts, the second kills the mount
// process and exits.
func superviseMount(parent context.Context, cfg types.MountConfig, signals <-chan os.Signal) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var rdb *common.RedisClient
	if appConfig.Events.Redis.Enabled() {
		client, err := common.NewRedisClient(appConfig.Events.Redis, common.WithClientName("BucketmountCLI"))
		if err != nil {
			log.Warn().Err(err).Msg("event redis unavailable, events stay local")
		} else {
			rdb = client
			defer rdb.Close()
		}
	}

	bus := common.NewEventBus(ctx, rdb, appConfig.Events.Redis.Channel)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go bus.Start()
	<-bus.Subscribed()

	backend := rclone.NewBackend(appConfig.Rclone)
	supervisor := mount.NewSupervisor(appConfig.Supervisor, backend, bus)

	runDone := make(chan error, 1)
	go func() { runDone <- supervisor.Run(ctx) }()

	if err := writePID(cfg); err != nil {
		log.Warn().Err(err).Str("path", pidPath).Msg("failed to write pid file")
	}
	defer removePID()

	if !IsJSONOutput() {
		PrintMountBanner(cfg)
	}

	if err := supervisor.RequestMount(ctx, cfg); err != nil {
		return err
	}

	var failed bool
	interrupted := false
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			// With redis the channel also carries other processes' mounts.
			if e.Source != bus.ID() {
				continue
			}
			renderEvent(e)
			if e.Type == types.EventStatus {
				failed = e.Severity == types.SeverityError
			}
			if e.Type == types.EventStateChanged && e.State == mount.Idle.String() {
				cancel()
				<-runDone
				if failed {
					return errMountFailed
				}
				return nil
			}

		case <-signals:
			if interrupted {
				killMount(supervisor)
				removePID()
				exit(1)
				return errMountFailed
			}
			interrupted = true

			err := supervisor.RequestUnmount(ctx)
			if types.IsNotMounted(err) {
				// Still creating the remote; cancelling stops the helper.
				cancel()
				<-runDone
				return nil
			}
			if err != nil && !errors.Is(err, mount.ErrStopped) {
				log.Warn().Err(err).Msg("unmount request failed")
			}

		case err := <-runDone:
			return err
		}
	}
}

// killMount sends SIGKILL to the mount process. It runs in its own process
// group, so terminal signals never reach it directly.
func killMount(supervisor *mount.Supervisor) {
	pid := supervisor.Status().PID
	if pid == 0 {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := proc.Signal(os.Kill); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("failed to kill mount process")
	}
}

func renderEvent(e types.Event) {
	if IsJSONOutput() {
		data, _ := json.Marshal(e)
		fmt.Fprintln(stdout, string(data))
		return
	}
	PrintEvent(e)
}
