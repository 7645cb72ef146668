package rclone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBinary    = "rclone"
	DefaultProvider  = "Ceph"
	DefaultCacheMode = "full"
	DefaultLogLevel  = "DEBUG"
	DefaultLogName   = "rclone-mount.log"
)

// RunFunc executes a short-lived rclone helper.
type RunFunc func(ctx context.Context, cmd process.Command) (process.Result, error)

type Option func(*Backend)

// WithRunFunc replaces how helper commands are executed.
func WithRunFunc(fn RunFunc) Option {
	return func(b *Backend) { b.run = fn }
}

// Backend builds and runs rclone invocations. Access keys never appear in
// arguments; they reach rclone through RCLONE_CONFIG_<REMOTE>_* variables.
type Backend struct {
	cfg types.RcloneConfig
	run RunFunc
}

func NewBackend(cfg types.RcloneConfig, opts ...Option) *Backend {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.RemoteMode == "" {
		cfg.RemoteMode = types.RemoteModePersistent
	}
	if cfg.CacheMode == "" {
		cfg.CacheMode = DefaultCacheMode
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(os.TempDir(), DefaultLogName)
	}

	b := &Backend{cfg: cfg, run: process.Run}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Config() types.RcloneConfig {
	return b.cfg
}

// Probe runs `rclone --version` and returns the first line of its output.
func (b *Backend) Probe(ctx context.Context) (string, error) {
	res, err := b.run(ctx, b.command(nil, "--version"))
	if err != nil {
		return "", err
	}
	if !res.Status.Success() {
		return "", fmt.Errorf("%s --version: %s: %s", b.cfg.Binary, res.Status, res.Output())
	}

	version, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return strings.TrimSpace(version), nil
}

// CreateRemote prepares the remote the mount process will use.
func (b *Backend) CreateRemote(ctx context.Context, cfg types.MountConfig) (types.Remote, error) {
	if b.cfg.RemoteMode == types.RemoteModeEphemeral {
		return b.createEphemeral(ctx, cfg.Credentials())
	}
	return b.createPersistent(ctx, cfg)
}

// createPersistent writes a named remote into the rclone config file. Only
// non-secret options are stored there.
func (b *Backend) createPersistent(ctx context.Context, cfg types.MountConfig) (types.Remote, error) {
	remote := types.Remote{
		Name: cfg.ProfileName,
		Env:  append([]string{passEnv(cfg.ConfigPassword)}, credentialEnv(cfg.ProfileName, cfg.Credentials())...),
	}

	cmd := b.command([]string{passEnv(cfg.ConfigPassword)},
		"config", "create", cfg.ProfileName, "s3",
		"provider", b.cfg.Provider,
		"env_auth", "false",
		"endpoint", cfg.Endpoint,
	)
	if err := b.runHelper(ctx, remote.Name, cmd); err != nil {
		return types.Remote{}, err
	}

	log.Info().Str("remote", remote.Name).Str("endpoint", cfg.Endpoint).Msg("rclone remote configured")
	return remote, nil
}

// createEphemeral defines a throwaway remote entirely through the environment
// and asks rclone to resolve it.
func (b *Backend) createEphemeral(ctx context.Context, creds types.Credentials) (types.Remote, error) {
	remote := b.ephemeralRemote(creds)

	cmd := b.command(remote.Env, "backend", "features", remote.Name+":")
	if err := b.runHelper(ctx, remote.Name, cmd); err != nil {
		return types.Remote{}, err
	}

	log.Info().Str("remote", remote.Name).Str("endpoint", creds.Endpoint).Msg("ephemeral rclone remote resolved")
	return remote, nil
}

func (b *Backend) runHelper(ctx context.Context, remote string, cmd process.Command) error {
	res, err := b.run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Status.Success() {
		return &types.RemoteCreationError{Remote: remote, Code: res.Status.Code, Output: res.Output()}
	}
	return nil
}

// MountCommand builds the long-running `rclone mount` invocation.
func (b *Backend) MountCommand(cfg types.MountConfig, remote types.Remote) process.Command {
	cmd := b.command(remote.Env,
		"mount", remote.Path(cfg.BucketName), cfg.MountPoint,
		"--vfs-cache-mode", b.cfg.CacheMode,
		"--log-level", b.cfg.LogLevel,
		"--log-file", b.cfg.LogFile,
	)
	cmd.Isolate = true
	return cmd
}

// ListBuckets returns the top-level directories (buckets) visible with creds.
func (b *Backend) ListBuckets(ctx context.Context, creds types.Credentials) ([]string, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	remote := b.ephemeralRemote(creds)
	res, err := b.run(ctx, b.command(remote.Env, "lsf", remote.Name+":", "--dirs-only"))
	if err != nil {
		return nil, err
	}
	if !res.Status.Success() {
		output := res.Output()
		if output == "" {
			output = "rclone exited with " + res.Status.String()
		}
		return nil, fmt.Errorf("list buckets: %s", output)
	}

	return ParseDirs(res.Stdout), nil
}

// ParseDirs turns `rclone lsf --dirs-only` output into names.
func ParseDirs(out string) []string {
	names := []string{}
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSuffix(strings.TrimSpace(line), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (b *Backend) ephemeralRemote(creds types.Credentials) types.Remote {
	name := common.TempRemoteName()
	prefix := envPrefix(name)

	env := []string{
		passEnv(creds.ConfigPassword),
		prefix + "TYPE=s3",
		prefix + "PROVIDER=" + b.cfg.Provider,
		prefix + "ENV_AUTH=false",
		prefix + "ENDPOINT=" + creds.Endpoint,
	}
	env = append(env, credentialEnv(name, creds)...)
	return types.Remote{Name: name, Env: env}
}

func (b *Backend) command(env []string, args ...string) process.Command {
	return process.Command{Name: b.cfg.Binary, Args: args, Env: env}
}

func envPrefix(remote string) string {
	return "RCLONE_CONFIG_" + strings.ToUpper(remote) + "_"
}

func credentialEnv(remote string, creds types.Credentials) []string {
	prefix := envPrefix(remote)
	return []string{
		prefix + "ACCESS_KEY_ID=" + creds.AccessKey,
		prefix + "SECRET_ACCESS_KEY=" + creds.SecretKey,
	}
}

func passEnv(password string) string {
	return "RCLONE_CONFIG_PASS=" + password
}
