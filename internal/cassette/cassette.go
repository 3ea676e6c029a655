// Package cassette implements CAS1:, the cassette tape device. The tape
// codec lives behind the Deck interface supplied by the embedder.
package cassette

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
)

// Deck reads and writes named files on a tape.
type Deck interface {
	// Find winds to the first file called name (any file if name is "")
	// and returns its name, type and contents. Files passed over are
	// reported through skipped.
	Find(name string, skipped func(name string, ft device.FileType)) (string, device.FileType, io.ReadCloser, error)
	// Create records a new file at the current tape position.
	Create(name string, ft device.FileType) (io.WriteCloser, error)
}

// Device is CAS1:.
type Device struct {
	deck   Deck
	screen io.Writer
}

// New returns CAS1: on deck, reporting Found/Skipped on screen. A nil deck
// makes the device unavailable.
func New(deck Deck, screen io.Writer) *Device {
	return &Device{deck: deck, screen: screen}
}

func (d *Device) Name() string { return "CAS1:" }

// typeLetter is the letter GW-BASIC shows after a tape file name.
func typeLetter(ft device.FileType) string {
	switch ft {
	case device.Program:
		return "B"
	case device.Memory:
		return "M"
	}
	return "D"
}

func (d *Device) report(name string, ft device.FileType, what string) {
	if d.screen == nil {
		return
	}
	fmt.Fprintf(d.screen, "%-8s.%s %s\r\n", name, typeLetter(ft), what)
}

// Open opens a tape file for INPUT or OUTPUT. Names are at most eight
// characters.
func (d *Device) Open(req device.OpenRequest) (device.Handle, error) {
	if d.deck == nil {
		return nil, ioerr.Op("OPEN", ioerr.DeviceUnavailable)
	}
	if req.Mode != device.Input && req.Mode != device.Output {
		return nil, ioerr.Op("OPEN", ioerr.BadFileMode)
	}
	name := strings.TrimSpace(req.Param)
	if len(name) > 8 {
		return nil, ioerr.Op("OPEN", ioerr.BadFileName)
	}

	if req.Mode == device.Output {
		w, err := d.deck.Create(name, req.FileType)
		if err != nil {
			return nil, ioerr.Wrap("OPEN", ioerr.DeviceIOError, err)
		}
		slog.Debug("cassette file created", slog.String("name", name))
		return device.NewTextFile(req.Number, device.Output, nil, w, device.TextOptions{
			CtrlZ:  req.FileType == device.Data,
			Closer: w,
		}), nil
	}

	found, ft, r, err := d.deck.Find(name, func(n string, t device.FileType) {
		d.report(n, t, "Skipped.")
	})
	if err != nil {
		return nil, ioerr.Wrap("OPEN", ioerr.DeviceIOError, err)
	}
	if ft != req.FileType {
		r.Close()
		return nil, ioerr.Op("OPEN", ioerr.BadFileMode)
	}
	d.report(found, ft, "Found.")
	return device.NewTextFile(req.Number, device.Input, r, nil, device.TextOptions{
		CtrlZ:  ft == device.Data,
		Closer: r,
	}), nil
}

func (d *Device) Close() error { return nil }

var _ device.Device = (*Device)(nil)
