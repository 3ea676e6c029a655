package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/acolita/basic-fileio/internal/config"
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/files"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/ports"
	"github.com/acolita/basic-fileio/internal/testing/fakes/fakefs"
)

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.CurrentDevice = "A"
	s.Ports.LPT1 = ""
	s.Mounts = map[string]config.Mount{"A": {Path: "/basic"}}
	return s
}

func testEnv(fsys *fakefs.FS) Env {
	return Env{
		FS:     fsys,
		Screen: device.NewWriterScreen(&bytes.Buffer{}, 80),
		Keys:   strings.NewReader(""),
	}
}

func newSession(t *testing.T, s *config.Settings, env Env) *Session {
	t.Helper()
	sess, err := New(s, env)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestNew(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddDir("/basic")
	sess := newSession(t, testSettings(), testEnv(fsys))

	if sess.Settings().MaxFiles != 3 {
		t.Errorf("Settings().MaxFiles = %d, want 3", sess.Settings().MaxFiles)
	}
	if got := sess.Devices().CurrentDevice(); got != "A:" {
		t.Errorf("CurrentDevice() = %q, want A:", got)
	}
	if _, err := sess.Files().OpenStatement(1, "NEW.DAT", files.StatementOptions{}); err != nil {
		t.Errorf("OpenStatement() error: %v", err)
	}
	if _, err := fsys.Stat("/basic/NEW.DAT"); err != nil {
		t.Errorf("NEW.DAT not created on the mount: %v", err)
	}
}

func TestNewBadCodepage(t *testing.T) {
	s := testSettings()
	s.Codepage = "9999"
	if _, err := New(s, testEnv(fakefs.New())); err == nil {
		t.Fatal("New() with unknown codepage expected error, got nil")
	}
}

func TestResetAppliesPendingSettings(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddDir("/basic")
	sess := newSession(t, testSettings(), testEnv(fsys))

	if _, err := sess.Files().OpenStatement(1, "KEEP.DAT", files.StatementOptions{}); err != nil {
		t.Fatal(err)
	}
	_, err := sess.Files().OpenStatement(5, "FIVE.DAT", files.StatementOptions{})
	if !errors.Is(err, ioerr.BadFileNumber) {
		t.Fatalf("OpenStatement(5) error = %v, want BadFileNumber", err)
	}

	next := testSettings()
	next.MaxFiles = 5
	sess.Update(next)
	if !sess.Pending() {
		t.Fatal("Pending() = false after Update")
	}
	if sess.Settings().MaxFiles != 3 {
		t.Error("Update applied settings before Reset")
	}

	if err := sess.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if sess.Pending() {
		t.Error("Pending() = true after Reset")
	}
	if sess.Settings().MaxFiles != 5 {
		t.Errorf("Settings().MaxFiles = %d, want 5", sess.Settings().MaxFiles)
	}
	if nums := sess.Files().Numbers(); len(nums) != 0 {
		t.Errorf("Numbers() = %v after Reset, want none", nums)
	}
	if _, err := sess.Files().OpenStatement(5, "FIVE.DAT", files.StatementOptions{}); err != nil {
		t.Errorf("OpenStatement(5) after Reset error: %v", err)
	}
}

func TestResetKeepsDevicesOnBadSettings(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddDir("/basic")
	sess := newSession(t, testSettings(), testEnv(fsys))
	before := sess.Devices()

	bad := testSettings()
	bad.Codepage = "9999"
	sess.Update(bad)
	if err := sess.Reset(); err == nil {
		t.Fatal("Reset() with bad settings expected error, got nil")
	}
	if sess.Devices() != before {
		t.Error("Reset replaced the registry although the new settings failed")
	}
	if sess.Settings().Codepage != "437" {
		t.Errorf("Settings().Codepage = %q, want 437", sess.Settings().Codepage)
	}
	if sess.Pending() {
		t.Error("failed settings still pending")
	}
}

func TestResetWithoutPending(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddDir("/basic")
	sess := newSession(t, testSettings(), testEnv(fsys))
	before := sess.Devices()

	sess.Files().OpenStatement(2, "X.DAT", files.StatementOptions{})
	if err := sess.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if sess.Devices() != before {
		t.Error("Reset without pending settings rebuilt the registry")
	}
	if _, err := sess.Files().Get(2, device.AnyMode); !errors.Is(err, ioerr.BadFileNumber) {
		t.Errorf("Get(2) after Reset error = %v, want BadFileNumber", err)
	}
}

func TestRemoteMount(t *testing.T) {
	local := fakefs.New()
	local.AddDir("/basic")
	remote := fakefs.New()
	remote.AddFile("/srv/basic/REMOTE.TXT", []byte("over sftp\x1a"), 0o644)

	var gotURI string
	var gotRemote config.RemoteSettings
	env := testEnv(local)
	env.Mounter = func(uri string, r config.RemoteSettings) (ports.FileSystem, string, error) {
		gotURI, gotRemote = uri, r
		return remote, "/srv/basic", nil
	}

	s := testSettings()
	s.Remote.PasswordEnv = "BASIC_PASS"
	s.Mounts["B"] = config.Mount{Path: "sftp://alice@files.example.org/srv/basic"}
	sess := newSession(t, s, env)

	if gotURI != "sftp://alice@files.example.org/srv/basic" {
		t.Errorf("Mounter got %q", gotURI)
	}
	if gotRemote.PasswordEnv != "BASIC_PASS" {
		t.Errorf("Mounter got remote settings %+v", gotRemote)
	}

	h, err := sess.Files().OpenStatement(1, "B:REMOTE.TXT", files.StatementOptions{Mode: ptr(device.Input)})
	if err != nil {
		t.Fatalf("open on remote drive error: %v", err)
	}
	got, _ := h.Input(9)
	if string(got) != "over sftp" {
		t.Errorf("Input(9) = %q", got)
	}
}

func ptr[T any](v T) *T { return &v }

func TestRemoteMountErrors(t *testing.T) {
	s := testSettings()
	s.Mounts["B"] = config.Mount{Path: "sftp://host/x"}

	if _, err := New(s, testEnv(fakefs.New())); err == nil {
		t.Error("New() without a Mounter expected error, got nil")
	}

	env := testEnv(fakefs.New())
	dialErr := errors.New("connection refused")
	env.Mounter = func(string, config.RemoteSettings) (ports.FileSystem, string, error) {
		return nil, "", dialErr
	}
	if _, err := New(s, env); !errors.Is(err, dialErr) {
		t.Errorf("New() error = %v, want the mount error", err)
	}
}
