package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/profiles"
	"github.com/beam-cloud/bucketmount/pkg/types"
)

// pidRecord identifies the foreground `bucketmount mount` process so other
// invocations can find and stop it.
type pidRecord struct {
	PID        int       `json:"pid"`
	Profile    string    `json:"profile"`
	Remote     string    `json:"remote"`
	MountPoint string    `json:"mount_point"`
	StartedAt  time.Time `json:"started_at"`
}

// PID file for unmount and status
var pidPath = func() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, profiles.DefaultDir, "mount.pid")
}()

func writePID(cfg types.MountConfig) error {
	rec := pidRecord{
		PID:        os.Getpid(),
		Profile:    cfg.ProfileName,
		Remote:     cfg.RemotePath(),
		MountPoint: cfg.MountPoint,
		StartedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pidPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(pidPath, data, 0644)
}

// removePID deletes the PID file if it still belongs to this process.
func removePID() {
	if rec := readPID(); rec.PID == os.Getpid() {
		os.Remove(pidPath)
	}
}

// readPID returns the zero record when there is no readable PID file.
func readPID() pidRecord {
	var rec pidRecord
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return pidRecord{}
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return pidRecord{}
	}
	return rec
}
