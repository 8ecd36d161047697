package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileNotFound = errors.New("profile does not exist")
	ErrInvalidName     = errors.New("invalid profile name")
)

// DefaultProfile is used when no --profile is given.
const DefaultProfile = "default"

var profileExts = []string{".json", ".yaml", ".yml"}

// Profiles manages the profile files in one directory (usually <root>/conf).
type Profiles struct {
	Dir string
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the existing file for name, preferring .json. When no file
// exists it returns the .json path that Create would write.
func (p Profiles) Path(name string) string {
	for _, ext := range profileExts {
		path := filepath.Join(p.Dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(p.Dir, name+".json")
}

func (p Profiles) exists(name string) bool {
	_, err := os.Stat(p.Path(name))
	return err == nil
}

// List returns the profile names, sorted.
func (p Profiles) List() ([]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Create writes a default profile. With existOK an existing profile is left
// untouched instead of failing.
func (p Profiles) Create(name string, existOK bool) error {
	if err := checkName(name); err != nil {
		return err
	}
	if p.exists(name) {
		if existOK {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrProfileExists, name)
	}
	return writeFileAtomic(filepath.Join(p.Dir, name+".json"), Default(name))
}

// Remove deletes a profile. With missingOK a missing profile is not an error.
func (p Profiles) Remove(name string, missingOK bool) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(p.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		if missingOK {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return err
}

// Read loads a profile. With create a missing profile is created first.
func (p Profiles) Read(name string, create bool) (*Config, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if !p.exists(name) {
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		if err := p.Create(name, true); err != nil {
			return nil, err
		}
	}
	path := p.Path(name)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(path, b)
}

// Write stores cfg under name, keeping the existing file's format.
func (p Profiles) Write(name string, cfg *Config) error {
	if err := checkName(name); err != nil {
		return err
	}
	return writeFileAtomic(p.Path(name), cfg)
}

func writeFileAtomic(path string, cfg *Config) error {
	b, err := Encode(path, cfg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
