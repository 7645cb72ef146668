package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog/log"
	psprocess "github.com/shirou/gopsutil/v4/process"
)

// pipeDrainDelay bounds how long Wait keeps reading output after the child
// exited, for grandchildren that inherited the pipes.
const pipeDrainDelay = 2 * time.Second

// Stream identifies which output pipe a chunk came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// OutputFunc receives output chunks in arrival order per stream. The chunk is
// only valid for the duration of the call.
type OutputFunc func(stream Stream, chunk []byte)

// Command describes a process to launch. Env is appended to the parent environment.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string

	// Isolate starts the process in its own process group so terminal
	// signals (Ctrl+C) reach only the supervisor.
	Isolate bool
}

// String renders name and args. The environment is never included since it
// carries credentials.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExitStatus is the outcome of a finished process. Code is -1 when the process
// was terminated by a signal.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "signal: " + s.Signal
	}
	return "exit code " + strconv.Itoa(s.Code)
}

// Stats is a point-in-time resource snapshot of a running process.
type Stats struct {
	RSS        uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Handle owns one external OS process from spawn until its exit is observed.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	name      string
	startedAt time.Time
	done      chan struct{}

	mu     sync.Mutex
	status ExitStatus
	exited bool
}

// Spawn starts c and returns a handle to it. onOutput may be nil, in which case
// output is discarded.
func Spawn(c Command, onOutput OutputFunc) (*Handle, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = pipeDrainDelay
	if c.Isolate {
		isolate(cmd)
	}
	if onOutput != nil {
		cmd.Stdout = &streamWriter{stream: Stdout, fn: onOutput}
		cmd.Stderr = &streamWriter{stream: Stderr, fn: onOutput}
	}

	if err := cmd.Start(); err != nil {
		return nil, &types.SpawnError{Command: c.Name, Err: err}
	}

	h := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		name:      c.Name,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	log.Debug().Str("command", c.Name).Int("pid", h.pid).Msg("process started")

	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	status := exitStatusFrom(h.cmd.ProcessState, err)

	h.mu.Lock()
	h.status = status
	h.exited = true
	h.mu.Unlock()

	log.Debug().
		Str("command", h.name).
		Int("pid", h.pid).
		Int("code", status.Code).
		Str("signal", status.Signal).
		Dur("uptime", time.Since(h.startedAt)).
		Msg("process exited")

	close(h.done)
}

func (h *Handle) Pid() int { return h.pid }

func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited and its output has been drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the exit has been observed.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// ExitStatus returns the exit status. Only meaningful after Done is closed.
func (h *Handle) ExitStatus() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Wait blocks until the process exits.
func (h *Handle) Wait() ExitStatus {
	<-h.done
	return h.ExitStatus()
}

// Signal delivers sig to the process. Signalling an exited process is a no-op.
func (h *Handle) Signal(sig os.Signal) error {
	if h.Exited() {
		return nil
	}
	err := h.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Stats samples memory and CPU usage of the running process.
func (h *Handle) Stats() (Stats, error) {
	return StatsFor(h.pid)
}

// StatsFor samples memory and CPU usage of any process on the host.
func StatsFor(pid int) (Stats, error) {
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}

// Exists reports whether a process with the given pid is present on the host.
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := psprocess.PidExists(int32(pid))
	return err == nil && ok
}

func exitStatusFrom(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		if err != nil {
			log.Warn().Err(err).Msg("process wait failed")
		}
		return ExitStatus{Code: -1}
	}

	status := ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
	}
	return status
}

type streamWriter struct {
	stream Stream
	fn     OutputFunc
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.fn(w.stream, p)
	return len(p), nil
}
