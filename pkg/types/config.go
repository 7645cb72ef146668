package types

import (
	"time"
)

// Remote modes for the create-remote step
const (
	RemoteModePersistent = "persistent" // rclone config create, credentials supplied via env at use time
	RemoteModeEphemeral  = "ephemeral"  // remote exists only in the child's environment
)

// Bucket listers
const (
	ListerRclone = "rclone"
	ListerS3     = "s3"
)

// AppConfig is the root configuration for bucketmount
type AppConfig struct {
	DebugMode  bool `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool `key:"prettyLogs" json:"pretty_logs"`

	Rclone     RcloneConfig     `key:"rclone" json:"rclone"`
	Supervisor SupervisorConfig `key:"supervisor" json:"supervisor"`
	Profiles   ProfilesConfig   `key:"profiles" json:"profiles"`
	Buckets    BucketsConfig    `key:"buckets" json:"buckets"`
	API        APIConfig        `key:"api" json:"api"`
	Events     EventsConfig     `key:"events" json:"events"`
}

// ----------------------------------------------------------------------------
// Backend Configuration
// ----------------------------------------------------------------------------

type RcloneConfig struct {
	Binary     string `key:"binary" json:"binary"`
	Provider   string `key:"provider" json:"provider"`     // s3 provider passed to rclone (Ceph, Minio, AWS, ...)
	RemoteMode string `key:"remoteMode" json:"remote_mode"` // "persistent" or "ephemeral"
	CacheMode  string `key:"cacheMode" json:"cache_mode"`
	LogLevel   string `key:"logLevel" json:"log_level"`
	LogFile    string `key:"logFile" json:"log_file"` // empty = <tmpdir>/rclone-mount.log
}

// ----------------------------------------------------------------------------
// Supervisor Configuration
// ----------------------------------------------------------------------------

type SupervisorConfig struct {
	ConfirmDelay time.Duration `key:"confirmDelay" json:"confirm_delay"`
	GracePeriod  time.Duration `key:"gracePeriod" json:"grace_period"`
	KillTimeout  time.Duration `key:"killTimeout" json:"kill_timeout"`
	OutputLimit  int           `key:"outputLimit" json:"output_limit"` // bytes of combined output kept for diagnosis
}

type ProfilesConfig struct {
	Path string `key:"path" json:"path"` // empty = ~/.bucketmount/profiles.yaml
}

type BucketsConfig struct {
	Lister   string        `key:"lister" json:"lister"` // "rclone" or "s3"
	Region   string        `key:"region" json:"region"`
	CacheTTL time.Duration `key:"cacheTTL" json:"cache_ttl"`
	CacheMax int           `key:"cacheMax" json:"cache_max"`
}

// ----------------------------------------------------------------------------
// Control Surface Configuration
// ----------------------------------------------------------------------------

type APIConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	AuthToken       string        `key:"authToken" json:"auth_token"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
	EnableLogs      bool          `key:"enableLogs" json:"enable_logs"`
}

type EventsConfig struct {
	Redis RedisConfig `key:"redis" json:"redis"`
}

// RedisConfig enables cross-process event delivery. Empty Addr keeps events in-process.
type RedisConfig struct {
	Addr     string `key:"addr" json:"addr"`
	Username string `key:"username" json:"username"`
	Password string `key:"password" json:"password"`
	DB       int    `key:"db" json:"db"`
	Channel  string `key:"channel" json:"channel"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}
