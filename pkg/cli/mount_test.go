package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeRclone writes a stand-in rclone binary into dir. The mount command
// records its pid in dir/rclone.pid before running mountBody.
func fakeRclone(t *testing.T, dir, configBody, mountBody string) string {
	t.Helper()
	if configBody == "" {
		configBody = "exit 0"
	}
	script := fmt.Sprintf(`#!/bin/sh
case "$1" in
config)
	%s
	;;
mount)
	echo $$ > %q
	%s
	;;
esac
exit 0
`, configBody, filepath.Join(dir, "rclone.pid"), mountBody)

	path := filepath.Join(dir, "rclone")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

type foregroundMount struct {
	t        *testing.T
	dir      string
	out      *syncBuffer
	signals  chan os.Signal
	done     chan error
	exitCode int
}

func newForegroundMount(t *testing.T, configBody, mountBody string) *foregroundMount {
	t.Helper()
	dir := t.TempDir()
	withPIDPath(t)

	fm := &foregroundMount{
		t:        t,
		dir:      dir,
		out:      &syncBuffer{},
		signals:  make(chan os.Signal, 2),
		done:     make(chan error, 1),
		exitCode: -1,
	}

	prevConfig, prevStdout, prevExit := appConfig, stdout, exit
	t.Cleanup(func() {
		appConfig, stdout, exit = prevConfig, prevStdout, prevExit
	})

	outputJSON = false
	disableColor()
	stdout = fm.out
	exit = func(code int) { fm.exitCode = code }
	appConfig = types.AppConfig{
		Rclone: types.RcloneConfig{
			Binary:  fakeRclone(t, dir, configBody, mountBody),
			LogFile: filepath.Join(dir, "rclone.log"),
		},
		Supervisor: types.SupervisorConfig{
			ConfirmDelay: 100 * time.Millisecond,
			GracePeriod:  500 * time.Millisecond,
			KillTimeout:  time.Second,
		},
	}
	return fm
}

func (fm *foregroundMount) start() {
	cfg := types.MountConfig{
		ProfileName: "mine",
		Endpoint:    "http://127.0.0.1:9000",
		AccessKey:   "AKIA",
		SecretKey:   "secret",
		BucketName:  "data",
		MountPoint:  filepath.Join(fm.dir, "mnt"),
	}
	go func() { fm.done <- superviseMount(context.Background(), cfg, fm.signals) }()
}

func (fm *foregroundMount) waitOutput(text string) {
	require.Eventually(fm.t, func() bool { return strings.Contains(fm.out.String(), text) }, 5*time.Second, 10*time.Millisecond,
		"never printed %q, got:\n%s", text, fm.out.String())
}

func (fm *foregroundMount) wait() error {
	select {
	case err := <-fm.done:
		return err
	case <-time.After(5 * time.Second):
		fm.t.Fatalf("foreground mount did not return, output:\n%s", fm.out.String())
		return nil
	}
}

func (fm *foregroundMount) mountPID() int {
	data, err := os.ReadFile(filepath.Join(fm.dir, "rclone.pid"))
	require.NoError(fm.t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(fm.t, err)
	return pid
}

const serveUntilInterrupted = `trap 'exit 0' INT; while :; do sleep 0.05; done`

func TestSuperviseMount_UnmountOnInterrupt(t *testing.T) {
	fm := newForegroundMount(t, "", serveUntilInterrupted)
	fm.start()
	fm.waitOutput("Successfully mounted")

	rec := readPID()
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "mine", rec.Profile)
	assert.Equal(t, "mine:data", rec.Remote)

	fm.signals <- os.Interrupt
	require.NoError(t, fm.wait())

	out := fm.out.String()
	assert.Contains(t, out, "Unmounting filesystem...")
	assert.Contains(t, out, "Mount terminated by user.")
	assert.Equal(t, -1, fm.exitCode)

	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSuperviseMount_CrashReturnsFailure(t *testing.T) {
	fm := newForegroundMount(t, "", `echo "Failed to mount: bucket not found" >&2; exit 1`)
	fm.start()

	err := fm.wait()
	assert.ErrorIs(t, err, errMountFailed)

	out := fm.out.String()
	assert.Contains(t, out, "Mount process failed with exit code: 1")
	assert.Contains(t, out, "bucket not found")
	assert.NotContains(t, out, "Successfully mounted")
}

func TestSuperviseMount_RemoteCreationFailure(t *testing.T) {
	fm := newForegroundMount(t, `echo "invalid endpoint" >&2; exit 1`, serveUntilInterrupted)
	fm.start()

	assert.ErrorIs(t, fm.wait(), errMountFailed)
	assert.Contains(t, fm.out.String(), "rclone config creation failed")
	_, err := os.Stat(filepath.Join(fm.dir, "rclone.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestSuperviseMount_InterruptWhileCreatingRemote(t *testing.T) {
	fm := newForegroundMount(t, "exec sleep 5", serveUntilInterrupted)
	fm.start()
	fm.waitOutput("Creating rclone config for profile: mine")

	fm.signals <- os.Interrupt
	require.NoError(t, fm.wait())
	assert.NotContains(t, fm.out.String(), "Successfully mounted")
	assert.Equal(t, -1, fm.exitCode)
}

func TestSuperviseMount_IgnoresOtherProcessesOnChannel(t *testing.T) {
	s := miniredis.RunT(t)
	fm := newForegroundMount(t, "", serveUntilInterrupted)
	appConfig.Events.Redis = types.RedisConfig{Addr: s.Addr(), Channel: "test:events"}

	fm.start()
	fm.waitOutput("Successfully mounted")

	rdb, err := common.NewRedisClient(types.RedisConfig{Addr: s.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	other := common.NewEventBus(context.Background(), rdb, "test:events")
	other.Publish(types.Event{Type: types.EventStatus, Severity: types.SeverityError, Message: "someone else failed", Profile: "other"})
	other.Publish(types.Event{Type: types.EventStateChanged, State: "idle", Profile: "other"})

	select {
	case err := <-fm.done:
		t.Fatalf("mount ended on another process's idle event: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	assert.NotContains(t, fm.out.String(), "someone else failed")

	fm.signals <- os.Interrupt
	require.NoError(t, fm.wait())
	assert.Contains(t, fm.out.String(), "Mount terminated by user.")
}

func TestSuperviseMount_SecondInterruptKillsMount(t *testing.T) {
	fm := newForegroundMount(t, "", `trap '' INT; while :; do sleep 0.05; done`)
	appConfig.Supervisor.GracePeriod = 5 * time.Second

	fm.start()
	fm.waitOutput("Successfully mounted")
	pid := fm.mountPID()

	fm.signals <- os.Interrupt
	fm.waitOutput("Unmounting filesystem...")
	assert.True(t, process.Exists(pid))

	fm.signals <- os.Interrupt
	assert.ErrorIs(t, fm.wait(), errMountFailed)
	assert.Equal(t, 1, fm.exitCode)

	require.Eventually(t, func() bool { return !process.Exists(pid) }, 2*time.Second, 10*time.Millisecond)
	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))
}
