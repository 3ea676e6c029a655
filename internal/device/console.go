package device

import (
	"io"
	"strings"
	"sync"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

// Null is the NUL device: reads end at once, writes are discarded.
type Null struct{}

// NewNull returns the null device.
func NewNull() *Null { return &Null{} }

func (*Null) Name() string { return "NUL" }

func (*Null) Open(req OpenRequest) (Handle, error) {
	return NewNullHandle(req.Number, req.Mode), nil
}

func (*Null) Close() error { return nil }

// NewNullHandle returns a handle on the null stream.
func NewNullHandle(number int, m Mode) *TextFile {
	return NewTextFile(number, m, strings.NewReader(""), io.Discard, TextOptions{})
}

// Screen is the display behind SCRN:. Rendering is the embedder's concern.
type Screen interface {
	io.Writer
	Width() int
	SetWidth(cols int) error
}

// WriterScreen is a Screen that writes plain bytes to an io.Writer.
type WriterScreen struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

// NewWriterScreen returns a screen of the given width writing to w.
func NewWriterScreen(w io.Writer, width int) *WriterScreen {
	return &WriterScreen{w: w, width: width}
}

func (s *WriterScreen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *WriterScreen) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// SetWidth accepts the legacy text widths 20, 40 and 80.
func (s *WriterScreen) SetWidth(cols int) error {
	if cols != 20 && cols != 40 && cols != 80 {
		return ioerr.New(ioerr.IllegalFunctionCall)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = cols
	return nil
}

// ScreenDevice is SCRN:. Its session-wide handle serves WRITE and PRINT
// without a file number.
type ScreenDevice struct {
	screen Screen
	file   *TextFile
}

// NewScreenDevice returns SCRN: over screen.
func NewScreenDevice(screen Screen) *ScreenDevice {
	return &ScreenDevice{
		screen: screen,
		file:   NewTextFile(0, Output, nil, screen, TextOptions{FlushOnWrite: true}),
	}
}

func (d *ScreenDevice) Name() string { return "SCRN:" }

// Screen returns the display.
func (d *ScreenDevice) Screen() Screen { return d.screen }

// File returns the session-wide screen handle.
func (d *ScreenDevice) File() *TextFile { return d.file }

// Open opens SCRN: for output; input is a bad file mode.
func (d *ScreenDevice) Open(req OpenRequest) (Handle, error) {
	if req.Mode == Input {
		return nil, ioerr.Op("OPEN", ioerr.BadFileMode)
	}
	return NewTextFile(req.Number, req.Mode, nil, d.screen, TextOptions{FlushOnWrite: true}), nil
}

func (d *ScreenDevice) Close() error { return d.file.Flush() }

// KeyboardDevice is KYBD:. It holds the screen because WIDTH on a keyboard
// file changes the screen width.
type KeyboardDevice struct {
	keys   io.Reader
	screen Screen
	file   *KeyboardFile
}

// KeyboardFile is a handle reading keystrokes.
type KeyboardFile struct {
	*TextFile
	screen Screen
}

// SetWidth changes the width of the screen the keyboard echoes to.
func (k *KeyboardFile) SetWidth(cols int) error {
	return k.screen.SetWidth(cols)
}

// NewKeyboardDevice returns KYBD: reading keys and echoing to screen.
func NewKeyboardDevice(keys io.Reader, screen Screen) *KeyboardDevice {
	d := &KeyboardDevice{keys: keys, screen: screen}
	d.file = d.newFile(0)
	return d
}

func (d *KeyboardDevice) newFile(number int) *KeyboardFile {
	return &KeyboardFile{
		TextFile: NewTextFile(number, Input, d.keys, nil, TextOptions{}),
		screen:   d.screen,
	}
}

func (d *KeyboardDevice) Name() string { return "KYBD:" }

// File returns the session-wide keyboard handle used by INPUT$ without a
// file number.
func (d *KeyboardDevice) File() *KeyboardFile { return d.file }

// Open opens KYBD: for input; any other mode is a bad file mode.
func (d *KeyboardDevice) Open(req OpenRequest) (Handle, error) {
	if req.Mode != Input {
		return nil, ioerr.Op("OPEN", ioerr.BadFileMode)
	}
	return d.newFile(req.Number), nil
}

func (d *KeyboardDevice) Close() error { return nil }
