package types

import (
	"regexp"
	"strings"
)

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MountConfig describes one bucket mount. It is treated as immutable once handed
// to the supervisor.
type MountConfig struct {
	ProfileName    string `yaml:"profileName" json:"profile_name"`
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	AccessKey      string `yaml:"accessKey" json:"access_key"`
	SecretKey      string `yaml:"secretKey" json:"secret_key"`
	BucketName     string `yaml:"bucketName" json:"bucket_name"`
	MountPoint     string `yaml:"mountPoint" json:"mount_point"`
	ConfigPassword string `yaml:"configPassword,omitempty" json:"config_password,omitempty"`
}

// Credentials is the subset of a profile needed to talk to the endpoint.
type Credentials struct {
	Endpoint       string `json:"endpoint"`
	AccessKey      string `json:"access_key"`
	SecretKey      string `json:"secret_key"`
	ConfigPassword string `json:"config_password,omitempty"`
}

func (c MountConfig) Credentials() Credentials {
	return Credentials{
		Endpoint:       c.Endpoint,
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		ConfigPassword: c.ConfigPassword,
	}
}

// RemotePath returns "<profile>:<bucket>".
func (c MountConfig) RemotePath() string {
	return c.ProfileName + ":" + c.BucketName
}

// Validate checks the fields a mount cannot proceed without.
func (c MountConfig) Validate() error {
	if err := ValidateProfileName(c.ProfileName); err != nil {
		return err
	}
	if err := c.Credentials().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.BucketName) == "" {
		return &ValidationError{Field: "bucket_name", Reason: "required"}
	}
	if strings.TrimSpace(c.MountPoint) == "" {
		return &ValidationError{Field: "mount_point", Reason: "required"}
	}
	return nil
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return &ValidationError{Field: "endpoint", Reason: "required"}
	}
	if c.AccessKey == "" {
		return &ValidationError{Field: "access_key", Reason: "required"}
	}
	if c.SecretKey == "" {
		return &ValidationError{Field: "secret_key", Reason: "required"}
	}
	return nil
}

// Redact returns a copy safe to log or return over the API
func (c MountConfig) Redact() MountConfig {
	if c.SecretKey != "" {
		c.SecretKey = "[REDACTED]"
	}
	if c.ConfigPassword != "" {
		c.ConfigPassword = "[REDACTED]"
	}
	return c
}

// ValidateProfileName enforces names usable inside RCLONE_CONFIG_<NAME>_* variables.
func ValidateProfileName(name string) error {
	if name == "" {
		return &ValidationError{Field: "profile_name", Reason: "required"}
	}
	if !profileNamePattern.MatchString(name) {
		return &ValidationError{Field: "profile_name", Reason: "only letters, digits and underscores are allowed"}
	}
	return nil
}

// Remote is an rclone remote resolved for one mount attempt. Env carries the
// process-local configuration and credentials for it.
type Remote struct {
	Name string
	Env  []string
}

// Path returns "<remote>:<bucket>".
func (r Remote) Path(bucket string) string {
	return r.Name + ":" + bucket
}
