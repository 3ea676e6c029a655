// Package session ties the device registry and the file table of one BASIC
// session together with its settings.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/acolita/basic-fileio/internal/adapters/remotefs"
	"github.com/acolita/basic-fileio/internal/cassette"
	"github.com/acolita/basic-fileio/internal/codepage"
	"github.com/acolita/basic-fileio/internal/config"
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/devices"
	"github.com/acolita/basic-fileio/internal/files"
	"github.com/acolita/basic-fileio/internal/logging"
	"github.com/acolita/basic-fileio/internal/ports"
	"github.com/acolita/basic-fileio/internal/printer"
)

// Mounter attaches a remote mount, returning its filesystem and the
// native root of the mount.
type Mounter func(uri string, remote config.RemoteSettings) (ports.FileSystem, string, error)

// Env holds the host collaborators of a session.
type Env struct {
	FS     ports.FileSystem
	Dialer ports.NetworkDialer
	Screen device.Screen
	Keys   io.Reader
	Deck   cassette.Deck
	Stdin  io.Reader
	Stdout io.Writer
	Spool  printer.SpoolFunc
	// Mounter attaches sftp:// mounts; nil refuses them.
	Mounter Mounter
}

// Session owns the devices and open files of one interpreter.
//
// Settings handed to Update while programs run are kept pending and take
// effect at the next Reset, when no file is open.
type Session struct {
	env      Env
	settings *config.Settings
	devices  *devices.Registry
	files    *files.Table

	mu      sync.Mutex
	pending *config.Settings
}

// New builds a session from validated settings.
func New(s *config.Settings, env Env) (*Session, error) {
	sess := &Session{env: env}
	reg, err := sess.build(s)
	if err != nil {
		return nil, err
	}
	sess.install(s, reg)
	return sess, nil
}

// build creates the device registry for s.
func (s *Session) build(cfg *config.Settings) (*devices.Registry, error) {
	cp, err := codepage.Lookup(cfg.Codepage)
	if err != nil {
		return nil, err
	}

	mounts := make(map[byte]devices.Mount, len(cfg.Mounts))
	var opened []io.Closer
	for letter, m := range cfg.Mounts {
		mount := devices.Mount{Root: m.Path, Cwd: m.Cwd}
		if remotefs.IsURL(m.Path) {
			if s.env.Mounter == nil {
				closeAll(opened)
				return nil, fmt.Errorf("mount %s: remote mounts not available", letter)
			}
			fsys, root, err := s.env.Mounter(m.Path, cfg.Remote)
			if err != nil {
				closeAll(opened)
				return nil, fmt.Errorf("mount %s: %w", letter, err)
			}
			if c, ok := fsys.(io.Closer); ok {
				opened = append(opened, c)
			}
			mount.FS, mount.Root, mount.Volume = fsys, root, m.Path
		}
		mounts[letter[0]] = mount
	}

	reg, err := devices.New(devices.Options{
		FS:               s.env.FS,
		Mounts:           mounts,
		CurrentDevice:    cfg.CurrentDevice,
		Ports:            cfg.Ports.Map(),
		SerialBufferSize: cfg.SerialBufferSize,
		Dialer:           s.env.Dialer,
		Screen:           s.env.Screen,
		Keys:             s.env.Keys,
		Deck:             s.env.Deck,
		Codepage:         cp,
		UTF8:             cfg.UTF8,
		TempDir:          cfg.TempDir,
		Spool:            s.env.Spool,
		Stdin:            s.env.Stdin,
		Stdout:           s.env.Stdout,
	})
	if err != nil {
		closeAll(opened)
		return nil, err
	}
	return reg, nil
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		c.Close()
	}
}

func (s *Session) install(cfg *config.Settings, reg *devices.Registry) {
	s.settings = cfg
	s.devices = reg
	s.files = files.New(reg, files.Options{
		MaxFiles:  cfg.MaxFiles,
		MaxRecLen: cfg.MaxRecLen,
		FS:        s.env.FS,
		Stdin:     s.env.Stdin,
		Stdout:    s.env.Stdout,
	})
}

// Files returns the file table.
func (s *Session) Files() *files.Table { return s.files }

// Devices returns the device registry.
func (s *Session) Devices() *devices.Registry { return s.devices }

// Settings returns the settings in effect.
func (s *Session) Settings() *config.Settings { return s.settings }

// Update queues settings for the next Reset. It is safe to call from
// another goroutine, such as a settings watcher.
func (s *Session) Update(cfg *config.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = cfg
}

// Pending reports whether settings are waiting for a Reset.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Reset closes every file and applies pending settings. Settings that cannot
// be applied are dropped and the session keeps its devices.
func (s *Session) Reset() error {
	err := s.files.CloseAll()

	s.mu.Lock()
	cfg := s.pending
	s.pending = nil
	s.mu.Unlock()
	if cfg == nil {
		return err
	}

	reg, berr := s.build(cfg)
	if berr != nil {
		slog.Error("settings not applied", logging.Err(berr))
		return errors.Join(err, berr)
	}
	if cerr := s.devices.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.install(cfg, reg)
	slog.Info("settings applied",
		slog.Int("max_files", cfg.MaxFiles),
		slog.Int("max_reclen", cfg.MaxRecLen),
		slog.String("current_device", cfg.CurrentDevice),
	)
	return err
}

// Close closes every file and device.
func (s *Session) Close() error {
	return errors.Join(s.files.CloseAll(), s.devices.Close())
}
