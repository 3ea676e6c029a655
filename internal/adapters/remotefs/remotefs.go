// Package remotefs implements the FileSystem port over SFTP, so that a
// drive letter can be mounted on a remote host with a mount such as
// sftp://user@host:22/home/user/basic.
package remotefs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/acolita/basic-fileio/internal/logging"
	"github.com/acolita/basic-fileio/internal/ports"
)

// KeyringService is the keyring service under which mount passwords are
// stored, keyed by "user@host".
const KeyringService = "basic-fileio"

// Target is a parsed sftp:// mount.
type Target struct {
	User string
	Host string
	Port int
	Path string
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// String returns the mount URL, which never carries a password.
func (t Target) String() string {
	return "sftp://" + t.User + "@" + t.Addr() + t.Path
}

// IsURL reports whether a mount path names a remote target.
func IsURL(mount string) bool {
	return strings.HasPrefix(strings.ToLower(mount), "sftp://")
}

// ParseURL parses sftp://[user@]host[:port][/path]. The user defaults to
// $USER, the port to 22 and the path to the login directory.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse mount %q: %w", raw, err)
	}
	if u.Scheme != "sftp" {
		return Target{}, fmt.Errorf("mount %q: scheme %q is not sftp", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("mount %q: no host", raw)
	}
	t := Target{Host: u.Hostname(), Port: 22, Path: u.Path}
	if p := u.Port(); p != "" {
		if t.Port, err = strconv.Atoi(p); err != nil {
			return Target{}, fmt.Errorf("mount %q: bad port: %w", raw, err)
		}
	}
	if u.User != nil {
		t.User = u.User.Username()
	}
	if t.User == "" {
		t.User = os.Getenv("USER")
	}
	return t, nil
}

// Options configures authentication. Password, KeyPath, the agent and the
// prompter are tried in that order; a missing password is looked up in the
// keyring before the prompter is considered.
type Options struct {
	KeyPath       string
	KeyPassphrase string
	Password      string
	UseAgent      bool
	UseKeyring    bool
	// KnownHosts is the known_hosts file; empty means ~/.ssh/known_hosts.
	// Hosts are not verified when the file does not exist.
	KnownHosts string
	Timeout    time.Duration
	// Dialer opens the TCP connection; nil dials directly.
	Dialer ports.NetworkDialer
	// Prompter asks for a password when none was supplied. It is only
	// called if the server falls back to password authentication. With
	// UseKeyring, an accepted password is stored for next time.
	Prompter ports.PasswordPrompter
}

// lookupPassword returns the stored password for user@host, or "".
func lookupPassword(t Target) (string, error) {
	pw, err := keyring.Get(KeyringService, t.User+"@"+t.Host)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return pw, err
}

// StorePassword saves a mount password in the keyring.
func StorePassword(t Target, password string) error {
	return keyring.Set(KeyringService, t.User+"@"+t.Host, password)
}

// authMethods builds the SSH auth methods for t.
func authMethods(t Target, opts Options) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	password := opts.Password
	if password == "" && opts.UseKeyring {
		pw, err := lookupPassword(t)
		if err != nil {
			return nil, fmt.Errorf("keyring lookup: %w", err)
		}
		password = pw
	}
	if password != "" {
		methods = append(methods, ssh.Password(password))
	}

	if opts.KeyPath != "" {
		data, err := os.ReadFile(expandHome(opts.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		var signer ssh.Signer
		if opts.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(opts.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(data)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if opts.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	if password == "" && opts.Prompter != nil {
		prompter := opts.Prompter
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return prompter.Password(ports.PasswordRequest{User: t.User, Host: t.Host, Mount: t.String()})
		}))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods for %s@%s", t.User, t.Host)
	}
	return methods, nil
}

func hostKeyCallback(knownHosts string) (ssh.HostKeyCallback, error) {
	if knownHosts == "" {
		knownHosts = "~/.ssh/known_hosts"
	}
	p := expandHome(knownHosts)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(p)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return cb, nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// recordingPrompter keeps the last password the user entered.
type recordingPrompter struct {
	ports.PasswordPrompter
	entered string
}

func (r *recordingPrompter) Password(req ports.PasswordRequest) (string, error) {
	pw, err := r.PasswordPrompter.Password(req)
	if err == nil {
		r.entered = pw
	}
	return pw, err
}

// FS is a remote filesystem. It owns its SSH connection.
type FS struct {
	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
	home   string
}

// Dial connects to t and starts the SFTP subsystem.
func Dial(t Target, opts Options) (*FS, error) {
	var prompted *recordingPrompter
	if opts.Prompter != nil {
		prompted = &recordingPrompter{PasswordPrompter: opts.Prompter}
		opts.Prompter = prompted
	}
	methods, err := authMethods(t, opts)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(opts.KnownHosts)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cfg := &ssh.ClientConfig{
		User:            t.User,
		Auth:            methods,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	var conn *ssh.Client
	if opts.Dialer != nil {
		raw, err := opts.Dialer.DialTimeout("tcp", t.Addr(), timeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", t.Addr(), err)
		}
		c, chans, reqs, err := ssh.NewClientConn(raw, t.Addr(), cfg)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("ssh handshake with %s: %w", t.Addr(), err)
		}
		conn = ssh.NewClient(c, chans, reqs)
	} else {
		conn, err = ssh.Dial("tcp", t.Addr(), cfg)
		if err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", t.Addr(), err)
		}
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create sftp client: %w", err)
	}
	home, err := client.Getwd()
	if err != nil {
		home = "/"
	}
	if prompted != nil && prompted.entered != "" && opts.UseKeyring {
		if err := StorePassword(t, prompted.entered); err != nil {
			slog.Warn("mount password not saved", slog.String("mount", t.String()), logging.Err(err))
		}
	}
	return &FS{conn: conn, client: client, home: home}, nil
}

// Root returns the native root of t on fsys: its path, or the login
// directory when the mount names none.
func (f *FS) Root(t Target) string {
	if t.Path == "" {
		return f.home
	}
	return t.Path
}

func (f *FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := f.client.OpenFile(name, flag)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		_ = file.Chmod(perm)
	}
	return file, nil
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	file, err := f.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	file, err := f.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client.Stat(name)
}

func (f *FS) ReadDir(name string) ([]fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client.ReadDir(name)
}

func (f *FS) Mkdir(name string, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.client.Mkdir(name); err != nil {
		return err
	}
	return f.client.Chmod(name, perm)
}

func (f *FS) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client.Remove(name)
}

func (f *FS) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client.Rename(oldpath, newpath)
}

// Join joins with forward slashes, whatever the local OS.
func (f *FS) Join(elem ...string) string { return path.Join(elem...) }

// UserHomeDir returns the remote login directory.
func (f *FS) UserHomeDir() (string, error) { return f.home, nil }

// Getenv reports nothing: the remote environment is not visible over SFTP.
func (f *FS) Getenv(key string) string { return "" }

// Close ends the SFTP session and the SSH connection.
func (f *FS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.client.Close()
	if cerr := f.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ ports.FileSystem = (*FS)(nil)

// Mount dials the target of an sftp:// mount and returns the filesystem
// with the native root of the mount.
func Mount(uri string, opts Options) (*FS, string, error) {
	t, err := ParseURL(uri)
	if err != nil {
		return nil, "", err
	}
	fsys, err := Dial(t, opts)
	if err != nil {
		return nil, "", err
	}
	return fsys, fsys.Root(t), nil
}
