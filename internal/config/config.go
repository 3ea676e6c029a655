// Package config handles the settings of a BASIC file session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/acolita/basic-fileio/internal/codepage"
	"github.com/acolita/basic-fileio/internal/ports"
)

// Limits from GW-BASIC: /F: takes up to 15 files and /S: up to 32767 bytes.
const (
	MaxFilesCeiling  = 15
	MaxRecLenCeiling = 32767
)

// DefaultConfigPath returns the default settings path:
// $XDG_CONFIG_HOME/basic-fileio/settings.yaml or ~/.config/basic-fileio/settings.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "basic-fileio", "settings.yaml")
}

// Settings is the session configuration.
type Settings struct {
	MaxFiles         int              `yaml:"max_files"`
	MaxRecLen        int              `yaml:"max_reclen"`
	SerialBufferSize int              `yaml:"serial_buffer_size"`
	CurrentDevice    string           `yaml:"current_device"` // drive letter or CAS1
	Mounts           map[string]Mount `yaml:"mounts"`         // keyed by drive letter
	Ports            PortSettings     `yaml:"ports"`
	Codepage         string           `yaml:"codepage"`
	UTF8             bool             `yaml:"utf8"` // host text files are UTF-8
	TempDir          string           `yaml:"temp_dir"`
	Remote           RemoteSettings   `yaml:"remote"`
	Logging          LoggingConfig    `yaml:"logging"`
}

// Mount attaches a drive letter to a host directory or an sftp:// URL.
type Mount struct {
	Path string `yaml:"path"`
	Cwd  string `yaml:"cwd"` // initial DOS current directory
}

// PortSettings are the backend specs of the serial and printer ports.
type PortSettings struct {
	LPT1 string `yaml:"lpt1"` // FILE:path, STDIO:, PRINTER:[name]
	LPT2 string `yaml:"lpt2"`
	LPT3 string `yaml:"lpt3"`
	COM1 string `yaml:"com1"` // SOCKET:host:port, PTY:, PORT:/dev/node, STDIO:
	COM2 string `yaml:"com2"`
}

// Map returns the specs keyed by device name.
func (p PortSettings) Map() map[string]string {
	return map[string]string{
		"LPT1:": p.LPT1, "LPT2:": p.LPT2, "LPT3:": p.LPT3,
		"COM1:": p.COM1, "COM2:": p.COM2,
	}
}

// RemoteSettings configure SSH authentication for sftp:// mounts.
type RemoteSettings struct {
	KeyPath     string `yaml:"key_path"`
	PasswordEnv string `yaml:"password_env"` // env var holding the SSH password
	UseAgent    bool   `yaml:"use_agent"`
	UseKeyring  bool   `yaml:"use_keyring"`
	KnownHosts  string `yaml:"known_hosts"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // redact credentials from logs
}

// DefaultSettings returns the GW-BASIC defaults.
func DefaultSettings() *Settings {
	return &Settings{
		MaxFiles:         3,
		MaxRecLen:        128,
		SerialBufferSize: 256,
		CurrentDevice:    "@",
		Ports:            PortSettings{LPT1: "PRINTER:"},
		Codepage:         "437",
		Remote:           RemoteSettings{UseAgent: true},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load loads settings from a YAML file. A missing file gives the defaults.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Settings, error) {
	s := DefaultSettings()

	if path == "" {
		return s, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}

	return s, nil
}

// Validate clamps the numeric limits into their legal ranges and
// normalises device names. It fails on names that cannot be used.
func (s *Settings) Validate() error {
	s.MaxFiles = clamp(s.MaxFiles, 0, MaxFilesCeiling)
	s.MaxRecLen = clamp(s.MaxRecLen, 1, MaxRecLenCeiling)
	if s.SerialBufferSize <= 0 {
		s.SerialBufferSize = 256
	}

	s.CurrentDevice = strings.TrimSuffix(strings.ToUpper(s.CurrentDevice), ":")
	if s.CurrentDevice == "" {
		s.CurrentDevice = "@"
	}
	if s.CurrentDevice != "CAS1" && !isDriveLetter(s.CurrentDevice) {
		return fmt.Errorf("current_device %q is not a drive letter or CAS1", s.CurrentDevice)
	}

	mounts := make(map[string]Mount, len(s.Mounts))
	for letter, m := range s.Mounts {
		l := strings.TrimSuffix(strings.ToUpper(letter), ":")
		if !isDriveLetter(l) {
			return fmt.Errorf("mount %q: not a drive letter", letter)
		}
		if m.Path == "" {
			return fmt.Errorf("mount %s: empty path", l)
		}
		mounts[l] = m
	}
	s.Mounts = mounts

	if s.Codepage == "" {
		s.Codepage = "437"
	}
	if _, err := codepage.Lookup(s.Codepage); err != nil {
		return err
	}

	switch strings.ToLower(s.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level %q not recognised", s.Logging.Level)
	}
	return nil
}

func isDriveLetter(s string) bool {
	return len(s) == 1 && (s[0] == '@' || s[0] >= 'A' && s[0] <= 'Z')
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// MountPath sets the mount of a drive letter, replacing any existing one.
func (s *Settings) MountPath(letter, path string) error {
	l := strings.TrimSuffix(strings.ToUpper(letter), ":")
	if !isDriveLetter(l) {
		return fmt.Errorf("mount %q: not a drive letter", letter)
	}
	if s.Mounts == nil {
		s.Mounts = make(map[string]Mount)
	}
	s.Mounts[l] = Mount{Path: path}
	return nil
}

// Save writes the settings to a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(s *Settings, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		return fsys[0].WriteFile(path, data, 0644)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
