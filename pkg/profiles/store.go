package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDir  = ".bucketmount"
	DefaultFile = "profiles.yaml"
)

// file is the on-disk layout.
type file struct {
	Profiles []types.MountConfig `yaml:"profiles"`
}

// Store keeps named mount profiles in a YAML file. Every mutation rewrites the
// whole file through a temp file and rename.
type Store struct {
	path string
	mu   sync.RWMutex
}

// DefaultPath returns ~/.bucketmount/profiles.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultDir, DefaultFile), nil
}

// NewStore opens the store at path, or the default location when path is empty.
// The file is created lazily on the first write.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]types.MountConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(f.Profiles, func(i, j int) bool {
		return f.Profiles[i].ProfileName < f.Profiles[j].ProfileName
	})
	return f.Profiles, nil
}

func (s *Store) Get(name string) (types.MountConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.load()
	if err != nil {
		return types.MountConfig{}, err
	}
	for _, p := range f.Profiles {
		if p.ProfileName == name {
			return p, nil
		}
	}
	return types.MountConfig{}, &types.ProfileNotFoundError{Name: name}
}

// Put validates and inserts or replaces a profile.
func (s *Store) Put(profile types.MountConfig) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i, p := range f.Profiles {
		if p.ProfileName == profile.ProfileName {
			f.Profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		f.Profiles = append(f.Profiles, profile)
	}

	if err := s.save(f); err != nil {
		return err
	}
	log.Debug().Str("profile", profile.ProfileName).Bool("replaced", replaced).Msg("profile saved")
	return nil
}

func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}

	kept := f.Profiles[:0]
	for _, p := range f.Profiles {
		if p.ProfileName != name {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(f.Profiles) {
		return &types.ProfileNotFoundError{Name: name}
	}
	f.Profiles = kept
	return s.save(f)
}

func (s *Store) load() (*file, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &file{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", s.path, err)
	}
	return &f, nil
}

func (s *Store) save(f *file) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}

	// Profiles hold secrets; keep the file private to the user.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write profiles: %w", err)
	}
	return nil
}
