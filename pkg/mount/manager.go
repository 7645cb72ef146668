package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog/log"
)

const DefaultConfirmDelay = 2500 * time.Millisecond

// ErrStopped is returned for requests made after the supervisor loop exited.
var ErrStopped = errors.New("mount supervisor is not running")

// Backend resolves remotes and builds the long-running mount command.
type Backend interface {
	CreateRemote(ctx context.Context, cfg types.MountConfig) (types.Remote, error)
	MountCommand(cfg types.MountConfig, remote types.Remote) process.Command
}

// Process is the view of a spawned mount process the supervisor relies on.
type Process interface {
	Pid() int
	StartedAt() time.Time
	Signal(sig os.Signal) error
	Done() <-chan struct{}
	ExitStatus() process.ExitStatus
}

// SpawnFunc launches a mount process.
type SpawnFunc func(cmd process.Command, onOutput process.OutputFunc) (Process, error)

// EventSink receives lifecycle and status events.
type EventSink interface {
	Publish(e types.Event)
}

type statsSource interface {
	Stats() (process.Stats, error)
}

// Status is a snapshot of the supervisor.
type Status struct {
	State      State          `json:"state"`
	Profile    string         `json:"profile,omitempty"`
	Remote     string         `json:"remote,omitempty"`
	MountPoint string         `json:"mount_point,omitempty"`
	PID        int            `json:"pid,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Stats      *process.Stats `json:"stats,omitempty"`
}

type Option func(*Supervisor)

// WithSpawnFunc replaces how mount processes are launched.
func WithSpawnFunc(fn SpawnFunc) Option {
	return func(s *Supervisor) { s.spawn = fn }
}

// WithCoordinator replaces the shutdown coordinator built from the config.
func WithCoordinator(c *process.Coordinator) Option {
	return func(s *Supervisor) { s.coordinator = c }
}

// Supervisor owns at most one mount process. All state transitions happen on
// the goroutine running Run; requests, timers and process exits reach it as
// messages tagged with the generation they belong to.
type Supervisor struct {
	cfg         types.SupervisorConfig
	backend     Backend
	sink        EventSink
	spawn       SpawnFunc
	coordinator *process.Coordinator

	inbox   chan any
	stopped chan struct{}
	running atomic.Bool
	ctx     context.Context

	// owned by the loop
	state   State
	gen     uint64
	pending types.MountConfig
	active  *activeMount
	intent  bool

	mu       sync.Mutex
	snapshot Status
	proc     Process
}

type activeMount struct {
	gen          uint64
	cfg          types.MountConfig
	remote       types.Remote
	proc         Process
	diag         *Diagnoser
	confirm      *time.Timer
	shuttingDown bool
}

type (
	mountRequest struct {
		cfg   types.MountConfig
		reply chan error
	}
	unmountRequest struct {
		reply chan error
	}
	remoteReady struct {
		gen    uint64
		remote types.Remote
		err    error
	}
	confirmElapsed struct {
		gen uint64
	}
	processExited struct {
		gen uint64
	}
	shutdownFinished struct {
		gen    uint64
		result process.ShutdownResult
		err    error
	}
)

func NewSupervisor(cfg types.SupervisorConfig, backend Backend, sink EventSink, opts ...Option) *Supervisor {
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = DefaultConfirmDelay
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = process.DefaultGracePeriod
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = process.DefaultKillTimeout
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = DefaultOutputLimit
	}

	s := &Supervisor{
		cfg:      cfg,
		backend:  backend,
		sink:     sink,
		inbox:    make(chan any, 16),
		stopped:  make(chan struct{}),
		ctx:      context.Background(),
		state:    Idle,
		snapshot: Status{State: Idle},
		spawn: func(cmd process.Command, onOutput process.OutputFunc) (Process, error) {
			return process.Spawn(cmd, onOutput)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.coordinator == nil {
		s.coordinator = process.NewCoordinator(cfg.GracePeriod, cfg.KillTimeout)
	}
	return s
}

// Run processes messages until ctx is cancelled. An active mount is shut down
// before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("mount supervisor already running")
	}
	s.ctx = ctx
	defer close(s.stopped)

	log.Info().Msg("mount supervisor started")
	for {
		select {
		case <-ctx.Done():
			s.stop()
			log.Info().Msg("mount supervisor stopped")
			return nil
		case msg := <-s.inbox:
			s.handle(msg)
		}
	}
}

// RequestMount starts a mount. It returns once the request was accepted or
// rejected; the outcome of the mount itself is reported through events.
func (s *Supervisor) RequestMount(ctx context.Context, cfg types.MountConfig) error {
	reply := make(chan error, 1)
	return s.request(ctx, mountRequest{cfg: cfg, reply: reply}, reply)
}

// RequestUnmount asks the active mount process to stop. It returns before the
// process has exited; the terminal report is delivered as an event.
func (s *Supervisor) RequestUnmount(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.request(ctx, unmountRequest{reply: reply}, reply)
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.State
}

// Status returns a snapshot including resource usage of the mount process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := s.snapshot
	proc := s.proc
	s.mu.Unlock()

	if src, ok := proc.(statsSource); ok {
		if stats, err := src.Stats(); err == nil {
			st.Stats = &stats
		}
	}
	return st
}

func (s *Supervisor) request(ctx context.Context, msg any, reply chan error) error {
	select {
	case s.inbox <- msg:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an internal message; it is dropped once the loop has exited.
func (s *Supervisor) post(msg any) {
	select {
	case s.inbox <- msg:
	case <-s.stopped:
	}
}

func (s *Supervisor) handle(msg any) {
	switch m := msg.(type) {
	case mountRequest:
		m.reply <- s.handleMount(m.cfg)
	case unmountRequest:
		m.reply <- s.handleUnmount()
	case remoteReady:
		s.handleRemoteReady(m)
	case confirmElapsed:
		s.handleConfirm(m.gen)
	case processExited:
		s.handleExit(m.gen)
	case shutdownFinished:
		s.handleShutdownFinished(m)
	default:
		log.Error().Str("type", fmt.Sprintf("%T", msg)).Msg("unknown supervisor message")
	}
}

func (s *Supervisor) handleMount(cfg types.MountConfig) error {
	if s.state != Idle {
		err := &types.AlreadyActiveError{State: s.state.String()}
		s.report(types.SeverityError, "A mount is already active. Please unmount first.")
		return err
	}
	if err := cfg.Validate(); err != nil {
		s.report(types.SeverityError, err.Error())
		return err
	}

	s.gen++
	s.intent = false
	s.pending = cfg
	s.setLastError(nil)
	s.transition(CreatingRemote)
	s.report(types.SeverityInfo, fmt.Sprintf("Creating rclone config for profile: %s...", cfg.ProfileName))

	gen := s.gen
	ctx := s.ctx
	go func() {
		remote, err := s.backend.CreateRemote(ctx, cfg)
		s.post(remoteReady{gen: gen, remote: remote, err: err})
	}()
	return nil
}

func (s *Supervisor) handleRemoteReady(m remoteReady) {
	if m.gen != s.gen || s.state != CreatingRemote {
		log.Debug().Uint64("gen", m.gen).Msg("dropping stale remote result")
		return
	}
	cfg := s.pending

	if m.err != nil {
		s.fail(m.err, "rclone config creation failed")
		return
	}
	s.report(types.SeveritySuccess, "rclone configuration created successfully.")

	_, statErr := os.Stat(cfg.MountPoint)
	// MkdirAll also fails with ENOTDIR when the path exists as a file.
	if err := os.MkdirAll(cfg.MountPoint, 0755); err != nil {
		s.fail(&types.DirectoryCreationError{Path: cfg.MountPoint, Err: err}, "")
		return
	}
	if os.IsNotExist(statErr) {
		s.report(types.SeveritySuccess, "Created mount point directory.")
	}

	remotePath := m.remote.Path(cfg.BucketName)
	s.report(types.SeverityInfo, fmt.Sprintf("Attempting to mount '%s'...", remotePath))

	diag := NewDiagnoser(s.cfg.OutputLimit)
	proc, err := s.spawn(s.backend.MountCommand(cfg, m.remote), diag.Observe)
	if err != nil {
		var spawnErr *types.SpawnError
		if !errors.As(err, &spawnErr) {
			err = &types.SpawnError{Command: "mount", Err: err}
		}
		s.fail(err, "")
		return
	}

	am := &activeMount{
		gen:    m.gen,
		cfg:    cfg,
		remote: m.remote,
		proc:   proc,
		diag:   diag,
	}
	s.intent = false
	s.active = am

	s.mu.Lock()
	started := proc.StartedAt()
	s.proc = proc
	s.snapshot.Remote = remotePath
	s.snapshot.MountPoint = cfg.MountPoint
	s.snapshot.PID = proc.Pid()
	s.snapshot.StartedAt = &started
	s.mu.Unlock()

	log.Info().
		Str("remote", remotePath).
		Str("path", cfg.MountPoint).
		Int("pid", proc.Pid()).
		Msg("mount process started")

	s.transition(Mounting)

	gen := m.gen
	am.confirm = time.AfterFunc(s.cfg.ConfirmDelay, func() { s.post(confirmElapsed{gen: gen}) })
	go func() {
		<-proc.Done()
		s.post(processExited{gen: gen})
	}()
}

func (s *Supervisor) handleConfirm(gen uint64) {
	am := s.active
	if am == nil || am.gen != gen || s.state != Mounting {
		log.Debug().Uint64("gen", gen).Msg("dropping stale confirmation")
		return
	}

	select {
	case <-am.proc.Done():
		// exit message is queued and will produce the terminal report
		return
	default:
	}

	s.transition(Mounted)
	s.report(types.SeveritySuccess, fmt.Sprintf("Successfully mounted '%s'.", am.remote.Path(am.cfg.BucketName)))
	s.emit(types.Event{Type: types.EventMountSuccessful})
}

func (s *Supervisor) handleUnmount() error {
	switch s.state {
	case Idle:
		s.report(types.SeverityWarn, "No active mount to unmount.")
		return &types.NotMountedError{State: s.state.String()}
	case CreatingRemote:
		s.report(types.SeverityWarn, "Mount is still being configured, nothing to unmount yet.")
		return &types.NotMountedError{State: s.state.String()}
	case Unmounting:
		s.report(types.SeverityInfo, "Unmount already in progress.")
		return nil
	}

	am := s.active
	s.intent = true
	am.shuttingDown = true
	if am.confirm != nil {
		am.confirm.Stop()
	}
	s.transition(Unmounting)
	s.report(types.SeverityInfo, "Unmounting filesystem...")

	gen, proc := am.gen, am.proc
	go func() {
		res, err := s.coordinator.Shutdown(context.Background(), proc)
		s.post(shutdownFinished{gen: gen, result: res, err: err})
	}()
	return nil
}

func (s *Supervisor) handleShutdownFinished(m shutdownFinished) {
	if m.err == nil {
		log.Info().
			Bool("escalated", m.result.Escalated).
			Dur("elapsed", m.result.Elapsed).
			Msg("mount process shut down")
		return
	}

	am := s.active
	if am == nil || am.gen != m.gen {
		return
	}
	s.abandon(am, m.err)
}

func (s *Supervisor) handleExit(gen uint64) {
	am := s.active
	if am == nil || am.gen != gen {
		log.Debug().Uint64("gen", gen).Msg("dropping stale exit")
		return
	}
	if am.confirm != nil {
		am.confirm.Stop()
	}

	status := am.proc.ExitStatus()
	if s.intent {
		s.setLastError(nil)
		s.report(types.SeveritySuccess, "Mount terminated by user.")
	} else {
		err := &types.AbnormalExitError{Code: status.Code, Diagnosis: am.diag.Render(status)}
		s.setLastError(err)
		log.Error().
			Str("profile", am.cfg.ProfileName).
			Int("code", status.Code).
			Str("signal", status.Signal).
			Msg("mount process exited unexpectedly")
		s.report(types.SeverityError, "Mount process failed with "+err.Diagnosis)
	}
	s.finish()
}

// abandon gives up on a process that survived the forced kill. It still
// produces exactly one terminal report; a late exit is stale by generation.
func (s *Supervisor) abandon(am *activeMount, cause error) {
	err := fmt.Errorf("pid %d: %w", am.proc.Pid(), cause)
	s.setLastError(err)
	log.Error().Err(err).Msg("abandoning mount process")
	s.report(types.SeverityError, fmt.Sprintf("Mount process %d did not exit after forced kill.", am.proc.Pid()))
	s.finish()
}

// finish releases the active process and returns to Idle.
func (s *Supervisor) finish() {
	s.active = nil
	s.intent = false

	s.mu.Lock()
	s.proc = nil
	s.snapshot.PID = 0
	s.snapshot.StartedAt = nil
	s.snapshot.Remote = ""
	s.mu.Unlock()

	s.transition(Idle)
	s.emit(types.Event{Type: types.EventMountTerminated})
}

func (s *Supervisor) fail(err error, prefix string) {
	s.setLastError(err)
	msg := err.Error()
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	s.report(types.SeverityError, msg)
	s.transition(Idle)
}

// stop shuts down an active mount when the loop is exiting.
func (s *Supervisor) stop() {
	am := s.active
	if am == nil {
		if s.state == CreatingRemote {
			s.transition(Idle)
		}
		return
	}

	if am.shuttingDown {
		select {
		case <-am.proc.Done():
		case <-time.After(s.coordinator.GracePeriod + s.coordinator.KillTimeout):
			s.abandon(am, process.ErrProcessUnkillable)
			return
		}
	} else {
		s.intent = true
		am.shuttingDown = true
		if am.confirm != nil {
			am.confirm.Stop()
		}
		s.transition(Unmounting)
		if _, err := s.coordinator.Shutdown(context.Background(), am.proc); err != nil {
			s.abandon(am, err)
			return
		}
	}
	s.handleExit(am.gen)
}

func (s *Supervisor) transition(state State) {
	s.state = state
	profile := s.pending.ProfileName

	s.mu.Lock()
	s.snapshot.State = state
	s.snapshot.Profile = profile
	if state == CreatingRemote {
		s.snapshot.MountPoint = s.pending.MountPoint
	}
	s.mu.Unlock()

	log.Info().Str("state", state.String()).Str("profile", profile).Msg("mount state changed")
	s.emit(types.Event{Type: types.EventStateChanged, State: state.String()})
}

func (s *Supervisor) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.snapshot.LastError = ""
		return
	}
	s.snapshot.LastError = err.Error()
}

func (s *Supervisor) report(severity types.Severity, msg string) {
	switch severity {
	case types.SeverityError:
		log.Error().Msg(msg)
	case types.SeverityWarn:
		log.Warn().Msg(msg)
	default:
		log.Info().Str("severity", string(severity)).Msg(msg)
	}
	s.emit(types.Event{Type: types.EventStatus, Severity: severity, Message: msg})
}

func (s *Supervisor) emit(e types.Event) {
	if s.sink == nil {
		return
	}
	e.Time = time.Now()
	if e.Profile == "" {
		e.Profile = s.pending.ProfileName
	}
	if e.State == "" {
		e.State = s.state.String()
	}
	s.sink.Publish(e)
}
