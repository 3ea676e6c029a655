package remotefs

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/acolita/basic-fileio/internal/testing/fakes/fakedialog"
	"github.com/acolita/basic-fileio/internal/testing/mockssh"
)

func TestParseURL(t *testing.T) {
	t.Setenv("USER", "alice")

	tests := []struct {
		raw     string
		want    Target
		wantErr bool
	}{
		{"sftp://bob@example.com:2222/srv/basic", Target{User: "bob", Host: "example.com", Port: 2222, Path: "/srv/basic"}, false},
		{"sftp://example.com", Target{User: "alice", Host: "example.com", Port: 22}, false},
		{"sftp://example.com/data", Target{User: "alice", Host: "example.com", Port: 22, Path: "/data"}, false},
		{"ftp://example.com/data", Target{}, true},
		{"sftp:///data", Target{}, true},
		{"sftp://example.com:port/", Target{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseURL() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	tests := []struct {
		mount string
		want  bool
	}{
		{"sftp://host/path", true},
		{"SFTP://host", true},
		{"/home/user/basic", false},
		{"C:\\basic", false},
	}
	for _, tt := range tests {
		if got := IsURL(tt.mount); got != tt.want {
			t.Errorf("IsURL(%q) = %v, want %v", tt.mount, got, tt.want)
		}
	}
}

func TestTargetAddr(t *testing.T) {
	got := Target{Host: "example.com", Port: 2222}.Addr()
	if got != "example.com:2222" {
		t.Errorf("Addr() = %q, want example.com:2222", got)
	}
}

func TestAuthMethods(t *testing.T) {
	keyring.MockInit()
	target := Target{User: "bob", Host: "example.com", Port: 22}

	if _, err := authMethods(target, Options{}); err == nil {
		t.Error("authMethods() with no credentials should fail")
	}

	methods, err := authMethods(target, Options{Password: "secret"})
	if err != nil {
		t.Fatalf("authMethods() error = %v", err)
	}
	if len(methods) != 1 {
		t.Errorf("len(methods) = %d, want 1", len(methods))
	}

	if _, err := authMethods(target, Options{UseKeyring: true}); err == nil {
		t.Error("authMethods() with empty keyring should fail")
	}
	if err := StorePassword(target, "stored"); err != nil {
		t.Fatalf("StorePassword() error = %v", err)
	}
	methods, err = authMethods(target, Options{UseKeyring: true})
	if err != nil {
		t.Fatalf("authMethods() after StorePassword error = %v", err)
	}
	if len(methods) != 1 {
		t.Errorf("len(methods) = %d, want 1", len(methods))
	}

	if _, err := authMethods(target, Options{KeyPath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("authMethods() with missing key file should fail")
	}

	methods, err = authMethods(target, Options{Prompter: fakedialog.New("typed")})
	if err != nil {
		t.Fatalf("authMethods() with prompter error = %v", err)
	}
	if len(methods) != 1 {
		t.Errorf("len(methods) = %d with prompter, want 1", len(methods))
	}
}

func TestTargetString(t *testing.T) {
	got := Target{User: "bob", Host: "example.com", Port: 2222, Path: "/srv"}.String()
	if got != "sftp://bob@example.com:2222/srv" {
		t.Errorf("String() = %q", got)
	}
}

func promptServer(t *testing.T) (*mockssh.Server, string) {
	t.Helper()
	server, err := mockssh.New(mockssh.WithRoot(t.TempDir()), mockssh.WithUser("alice", "s3cret"))
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, "sftp://alice@" + server.Host() + ":" + server.Port()
}

func TestMountPromptsForPassword(t *testing.T) {
	keyring.MockInit()
	server, uri := promptServer(t)
	prompter := fakedialog.New("s3cret")

	fsys, _, err := Mount(uri, Options{
		UseKeyring: true,
		Prompter:   prompter,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	fsys.Close()

	calls := prompter.Calls()
	if len(calls) != 1 {
		t.Fatalf("prompted %d times, want 1", len(calls))
	}
	want := "sftp://alice@" + server.Host() + ":" + server.Port()
	if calls[0].User != "alice" || calls[0].Host != server.Host() || calls[0].Mount != want {
		t.Errorf("prompt request = %+v", calls[0])
	}

	port, _ := strconv.Atoi(server.Port())
	stored, err := lookupPassword(Target{User: "alice", Host: server.Host(), Port: port})
	if err != nil || stored != "s3cret" {
		t.Errorf("keyring password = %q, %v; want s3cret", stored, err)
	}

	// The stored password now serves without asking again.
	fsys, _, err = Mount(uri, Options{
		UseKeyring: true,
		Prompter:   prompter,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})
	if err != nil {
		t.Fatalf("second Mount() error = %v", err)
	}
	fsys.Close()
	if n := len(prompter.Calls()); n != 1 {
		t.Errorf("prompted %d times after keyring store, want 1", n)
	}
}

func TestMountSkipsPromptWithPassword(t *testing.T) {
	_, uri := promptServer(t)
	prompter := fakedialog.New("unused")

	fsys, _, err := Mount(uri, Options{
		Password:   "s3cret",
		Prompter:   prompter,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	fsys.Close()
	if n := len(prompter.Calls()); n != 0 {
		t.Errorf("prompted %d times, want 0", n)
	}
}

func TestMountPromptFailure(t *testing.T) {
	_, uri := promptServer(t)
	prompter := fakedialog.New("")
	prompter.Err = errors.New("no terminal")

	if _, _, err := Mount(uri, Options{
		Prompter:   prompter,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	}); err == nil {
		t.Error("Mount() with a failing prompter should fail")
	}

	wrong := fakedialog.New("wrong")
	if _, _, err := Mount(uri, Options{
		Prompter:   wrong,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	}); err == nil {
		t.Error("Mount() with a wrong prompted password should fail")
	}
}

func TestLookupPasswordNotFound(t *testing.T) {
	keyring.MockInit()
	pw, err := lookupPassword(Target{User: "nobody", Host: "nowhere"})
	if err != nil {
		t.Fatalf("lookupPassword() error = %v", err)
	}
	if pw != "" {
		t.Errorf("lookupPassword() = %q, want empty", pw)
	}
}

func mount(t *testing.T, root string) (*FS, string) {
	t.Helper()
	server, err := mockssh.New(mockssh.WithRoot(root), mockssh.WithUser("basic", "basic"))
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })

	uri := "sftp://basic@" + server.Host() + ":" + server.Port()
	fsys, native, err := Mount(uri, Options{
		Password:   "basic",
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})
	if err != nil {
		t.Fatalf("Mount(%q) error = %v", uri, err)
	}
	t.Cleanup(func() { fsys.Close() })
	return fsys, native
}

func TestMountRootDefaultsToLoginDirectory(t *testing.T) {
	root := t.TempDir()
	_, native := mount(t, root)
	if native != root {
		t.Errorf("root = %q, want %q", native, root)
	}
}

func TestFSFileOperations(t *testing.T) {
	root := t.TempDir()
	fsys, native := mount(t, root)

	name := fsys.Join(native, "DATA.DAT")
	if err := fsys.WriteFile(name, []byte("HELLO"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "DATA.DAT"))
	if err != nil {
		t.Fatalf("local ReadFile() error = %v", err)
	}
	if string(got) != "HELLO" {
		t.Errorf("file = %q, want HELLO", got)
	}

	f, err := fsys.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if _, err := f.WriteAt([]byte("J"), 0); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "JELLO" {
		t.Errorf("ReadAll() = %q, want JELLO", data)
	}
	f.Close()

	info, err := fsys.Stat(name)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("Size() = %d, want 5", info.Size())
	}

	renamed := fsys.Join(native, "OLD.DAT")
	if err := fsys.Rename(name, renamed); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if _, err := fsys.ReadFile(renamed); err != nil {
		t.Errorf("ReadFile(renamed) error = %v", err)
	}

	if err := fsys.Mkdir(fsys.Join(native, "SUB"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	entries, err := fsys.ReadDir(native)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = e.IsDir()
	}
	if isDir, ok := names["SUB"]; !ok || !isDir {
		t.Errorf("ReadDir() missing directory SUB: %v", names)
	}
	if _, ok := names["OLD.DAT"]; !ok {
		t.Errorf("ReadDir() missing OLD.DAT: %v", names)
	}

	if err := fsys.Remove(renamed); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "OLD.DAT")); !os.IsNotExist(err) {
		t.Errorf("OLD.DAT still exists after Remove, err = %v", err)
	}
}

func TestFSEnvironment(t *testing.T) {
	root := t.TempDir()
	fsys, _ := mount(t, root)

	home, err := fsys.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() error = %v", err)
	}
	if home != root {
		t.Errorf("UserHomeDir() = %q, want %q", home, root)
	}
	if got := fsys.Getenv("HOME"); got != "" {
		t.Errorf("Getenv() = %q, want empty", got)
	}
	if got := fsys.Join("/a", "b", "c.txt"); got != "/a/b/c.txt" {
		t.Errorf("Join() = %q, want /a/b/c.txt", got)
	}
}

func TestMountBadPassword(t *testing.T) {
	server, err := mockssh.New()
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	defer server.Close()

	port, _ := strconv.Atoi(server.Port())
	_, err = Dial(Target{User: "test", Host: server.Host(), Port: port}, Options{
		Password:   "wrong",
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})
	if err == nil {
		t.Error("Dial() with wrong password should fail")
	}
}

// writeClientKey writes a fresh unencrypted ed25519 key in OpenSSH format
// and returns its path and public half.
func writeClientKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return path, sshPub
}

func TestMountWithKeyAndKnownHosts(t *testing.T) {
	keyPath, pub := writeClientKey(t)
	root := t.TempDir()
	server, err := mockssh.New(mockssh.WithRoot(root), mockssh.WithAuthorizedKey("basic", pub))
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	defer server.Close()

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(server.Addr())}, server.HostKey())
	if err := os.WriteFile(knownHosts, []byte(line+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	uri := "sftp://basic@" + server.Addr()
	fsys, native, err := Mount(uri, Options{KeyPath: keyPath, KnownHosts: knownHosts})
	if err != nil {
		t.Fatalf("Mount() with key error = %v", err)
	}
	defer fsys.Close()
	if native != root {
		t.Errorf("root = %q, want %q", native, root)
	}
}

func TestMountRejectsUnknownHostKey(t *testing.T) {
	keyPath, pub := writeClientKey(t)
	server, err := mockssh.New(mockssh.WithAuthorizedKey("basic", pub))
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	defer server.Close()

	// known_hosts names the address with some other key.
	_, otherKey := writeClientKey(t)
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(server.Addr())}, otherKey)
	if err := os.WriteFile(knownHosts, []byte(line+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err = Mount("sftp://basic@"+server.Addr(), Options{KeyPath: keyPath, KnownHosts: knownHosts})
	if err == nil {
		t.Fatal("Mount() with a mismatched host key should fail")
	}
}

func TestMountThroughDialer(t *testing.T) {
	root := t.TempDir()
	server, err := mockssh.New(mockssh.WithRoot(root))
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	defer server.Close()

	dialer := &countingDialer{}
	fsys, _, err := Mount("sftp://test@"+server.Addr(), Options{
		Password:   "test",
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
		Dialer:     dialer,
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	defer fsys.Close()
	if dialer.calls != 1 || dialer.timeout != 5*time.Second {
		t.Errorf("dialer calls = %d, timeout = %v; want 1, 5s", dialer.calls, dialer.timeout)
	}
}

type countingDialer struct {
	calls   int
	timeout time.Duration
}

func (d *countingDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	d.calls++
	d.timeout = timeout
	return net.DialTimeout(network, address, timeout)
}
