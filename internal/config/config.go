// Package config loads the TOML settings file that configures a
// confetti-box server instance. Grounded on the original Rust
// implementation's settings.rs (default-and-save-if-missing behavior,
// sibling-.bkp-then-rename save), re-expressed with the teacher's own
// config dependency, github.com/BurntSushi/toml.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Dangoware/confetti-box/pkg/errtypes"
)

// Duration mirrors the settings file's [duration] table.
type Duration struct {
	Maximum           int64   `toml:"maximum"`
	Default           int64   `toml:"default"`
	Allowed           []int64 `toml:"allowed"`
	RestrictToAllowed bool    `toml:"restrict_to_allowed"`
}

// Server mirrors the settings file's [server] table.
type Server struct {
	Domain   string `toml:"domain"`
	Address  string `toml:"address"`
	Port     uint16 `toml:"port"`
	RootPath string `toml:"root_path"`
}

// Settings is the top-level decoded settings file (spec §6 Configuration).
type Settings struct {
	MaxFilesize  uint64   `toml:"max_filesize"`
	Overwrite    bool     `toml:"overwrite"`
	DatabasePath string   `toml:"database_path"`
	TempDir      string   `toml:"temp_dir"`
	FileDir      string   `toml:"file_dir"`
	ChunkSize    uint64   `toml:"chunk_size"`
	Duration     Duration `toml:"duration"`
	Server       Server   `toml:"server"`

	path string
}

// Default returns the settings a fresh install is bootstrapped with, taken
// from the original implementation's defaults (128 MB max file size, 1 day
// default duration) adjusted to this repo's example shape.
func Default(path string) Settings {
	return Settings{
		MaxFilesize:  1 << 27, // 128 MiB
		Overwrite:    false,
		DatabasePath: "./data/index.db",
		TempDir:      "./data/staging",
		FileDir:      "./data/blobs",
		ChunkSize:    4 << 20, // 4 MiB
		Duration: Duration{
			Maximum:           7 * 24 * 3600,
			Default:           24 * 3600,
			Allowed:           []int64{3600, 24 * 3600, 7 * 24 * 3600},
			RestrictToAllowed: false,
		},
		Server: Server{
			Domain:   "localhost",
			Address:  "0.0.0.0",
			Port:     8080,
			RootPath: "/",
		},
		path: path,
	}
}

// Load reads settings from path, creating and saving a default settings
// file if none exists yet. An existing-but-unparseable file fails fast, per
// spec §6's exit/error surface: startup must not silently fall back to
// defaults over a corrupt settings file.
func Load(path string) (Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s := Default(path)
		if err := s.Save(); err != nil {
			return Settings{}, err
		}
		return s, nil
	} else if err != nil {
		return Settings{}, errtypes.InternalWrap(err, "config: stat settings file")
	}

	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, errtypes.InternalWrap(err, "config: decode settings file")
	}
	s.path = path
	return s, nil
}

// Save writes s to its backing path via a sibling-file-then-rename, the same
// atomic-replace pattern metaindex snapshots use.
func (s Settings) Save() error {
	tmp := s.path + ".bkp"
	f, err := os.Create(tmp)
	if err != nil {
		return errtypes.InternalWrap(err, "config: create settings file")
	}
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		return errtypes.InternalWrap(err, "config: encode settings file")
	}
	if err := f.Close(); err != nil {
		return errtypes.InternalWrap(err, "config: close settings file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errtypes.InternalWrap(err, "config: rename settings file into place")
	}
	return nil
}

// MaxDuration returns the configured maximum upload lifetime.
func (s Settings) MaxDuration() time.Duration {
	return time.Duration(s.Duration.Maximum) * time.Second
}

// DefaultDuration returns the configured default upload lifetime.
func (s Settings) DefaultDuration() time.Duration {
	return time.Duration(s.Duration.Default) * time.Second
}

// DurationAllowed reports whether d is an acceptable upload lifetime given
// the configured maximum and, if restrict_to_allowed is set, the allowed
// list.
func (s Settings) DurationAllowed(d time.Duration) bool {
	if d <= 0 || d > s.MaxDuration() {
		return false
	}
	if !s.Duration.RestrictToAllowed {
		return true
	}
	seconds := int64(d / time.Second)
	for _, allowed := range s.Duration.Allowed {
		if allowed == seconds {
			return true
		}
	}
	return false
}
