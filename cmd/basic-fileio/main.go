// basic-fileio runs BASIC file statements against configured drives and
// ports from the command line.
//
// Usage:
//
//	basic-fileio [-config settings.yaml] [-debug] files [MASK]
//	basic-fileio [-config settings.yaml] type SPEC
//	basic-fileio [-config settings.yaml] copy SRC DST
//	basic-fileio [-config settings.yaml] shell
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/acolita/basic-fileio/internal/adapters/realdialog"
	"github.com/acolita/basic-fileio/internal/adapters/realfs"
	"github.com/acolita/basic-fileio/internal/adapters/realnet"
	"github.com/acolita/basic-fileio/internal/adapters/remotefs"
	"github.com/acolita/basic-fileio/internal/config"
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/logging"
	"github.com/acolita/basic-fileio/internal/ports"
	"github.com/acolita/basic-fileio/internal/session"
)

// Version information - set at build time.
var (
	Version   = "0.3.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", config.DefaultConfigPath(), "Path to settings file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&debug, "debug", false, "Log at debug level")
	flag.Parse()

	if showVersion {
		fmt.Printf("basic-fileio version %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		os.Exit(0)
	}

	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}
	if debug {
		settings.Logging.Level = "debug"
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid settings: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(settings.Logging.Level, settings.Logging.Sanitize)

	fsys := realfs.New()
	dialer := realnet.NewDialer(10 * time.Second)
	sess, err := session.New(settings, session.Env{
		FS:      fsys,
		Dialer:  dialer,
		Screen:  device.NewWriterScreen(os.Stdout, 80),
		Keys:    os.Stdin,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Mounter: remoteMounter(dialer, realdialog.New()),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting session: %v\n", err)
		os.Exit(1)
	}

	var watcher *config.Watcher
	if flag.Arg(0) == "shell" && configPath != "" {
		watcher, err = config.NewWatcher(configPath, func(s *config.Settings) {
			if debug {
				s.Logging.Level = "debug"
			}
			sess.Update(s)
		})
		if err != nil {
			slog.Warn("settings hot-reload disabled", slog.String("error", err.Error()))
		} else {
			slog.Info("settings hot-reload enabled", slog.String("path", configPath))
		}
	}

	closers := []io.Closer{sess}
	if watcher != nil {
		closers = []io.Closer{watcher, sess}
	}
	shutdown := closeOnce(closers...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal")
		shutdown()
		os.Exit(130)
	}()

	err = run(sess, flag.Args(), os.Stdin, os.Stdout)
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// closeOnce returns a function closing cs in order on its first call. Later
// and concurrent calls wait for that one and do nothing.
func closeOnce(cs ...io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, c := range cs {
				if err := c.Close(); err != nil {
					slog.Error("close failed", logging.Err(err))
				}
			}
		})
	}
}

// remoteMounter dials sftp:// mounts with the remote settings. prompter asks
// for passwords that neither the settings nor the keyring supply.
func remoteMounter(dialer ports.NetworkDialer, prompter ports.PasswordPrompter) session.Mounter {
	return func(uri string, remote config.RemoteSettings) (ports.FileSystem, string, error) {
		opts := remotefs.Options{
			KeyPath:    remote.KeyPath,
			UseAgent:   remote.UseAgent,
			UseKeyring: remote.UseKeyring,
			KnownHosts: remote.KnownHosts,
			Dialer:     dialer,
			Prompter:   prompter,
		}
		if remote.PasswordEnv != "" {
			opts.Password = os.Getenv(remote.PasswordEnv)
		}
		slog.Info("mounting remote drive", slog.String("mount", uri))
		fsys, root, err := remotefs.Mount(uri, opts)
		if err != nil {
			return nil, "", err
		}
		return fsys, root, nil
	}
}
