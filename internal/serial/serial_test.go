package serial

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/testing/fakes/fakenet"
)

func TestParseLineSettings(t *testing.T) {
	tests := []struct {
		param   string
		want    LineSettings
		wantErr bool
	}{
		{"", LineSettings{Speed: 300, Parity: 'E', DataBits: 7, StopBits: 1}, false},
		{"9600,N,8,1", LineSettings{Speed: 9600, Parity: 'N', DataBits: 8, StopBits: 1}, false},
		{"1200,,8", LineSettings{Speed: 1200, Parity: 'E', DataBits: 8, StopBits: 1}, false},
		{"9600,n,8,2,RS,CS1000,DS", LineSettings{Speed: 9600, Parity: 'N', DataBits: 8, StopBits: 2, Flags: []string{"RS", "CS1000", "DS"}}, false},
		{"9601", LineSettings{}, true},
		{"9600,X", LineSettings{}, true},
		{"9600,N,9", LineSettings{}, true},
		{"9600,N,8,3", LineSettings{}, true},
		{"9600,N,8,1,XX", LineSettings{}, true},
		{"9600,N,8,1,CSabc", LineSettings{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			got, err := ParseLineSettings(tt.param)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLineSettings(%q) error = %v, wantErr %v", tt.param, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ioerr.BadFileName) {
					t.Errorf("kind = %v, want BadFileName", ioerr.KindOf(err))
				}
				return
			}
			if got.Speed != tt.want.Speed || got.Parity != tt.want.Parity ||
				got.DataBits != tt.want.DataBits || got.StopBits != tt.want.StopBits ||
				strings.Join(got.Flags, ",") != strings.Join(tt.want.Flags, ",") {
				t.Errorf("ParseLineSettings(%q) = %+v, want %+v", tt.param, got, tt.want)
			}
		})
	}
}

func TestCarrierTimeout(t *testing.T) {
	tests := []struct {
		param string
		want  time.Duration
	}{
		{"9600,N,8,1", 0},
		{"9600,N,8,1,CD", 0},
		{"9600,N,8,1,RS,CD500", 500 * time.Millisecond},
		{"9600,N,8,1,CS1000,DS0", 0},
	}
	for _, tt := range tests {
		ls, err := ParseLineSettings(tt.param)
		if err != nil {
			t.Fatalf("ParseLineSettings(%q) error = %v", tt.param, err)
		}
		if got := ls.CarrierTimeout(); got != tt.want {
			t.Errorf("CarrierTimeout(%q) = %v, want %v", tt.param, got, tt.want)
		}
	}
}

func TestOpenUnavailable(t *testing.T) {
	d := New("COM2:", Options{})
	if d.Available() {
		t.Fatal("Available() = true with no backend")
	}
	_, err := d.Open(device.OpenRequest{Number: 1, Mode: device.Random})
	if !errors.Is(err, ioerr.DeviceUnavailable) {
		t.Errorf("Open() error = %v, want DeviceUnavailable", err)
	}
}

func TestOpenDialFailure(t *testing.T) {
	dialer := fakenet.NewDialer()
	d := New("COM1:", Options{Backend: "SOCKET:modem:23", Dialer: dialer})

	_, err := d.Open(device.OpenRequest{Number: 1, Param: "1200,N,8,1,CD2500", Mode: device.Random})
	if !errors.Is(err, ioerr.DeviceTimeout) {
		t.Errorf("Open() error = %v, want DeviceTimeout", err)
	}
	calls := dialer.Calls()
	if len(calls) != 1 || calls[0].Address != "modem:23" || calls[0].Network != "tcp" {
		t.Fatalf("Dial calls = %+v, want one tcp dial to modem:23", calls)
	}
	if calls[0].Timeout != 2500*time.Millisecond {
		t.Errorf("dial timeout = %v, want the CD2500 carrier timeout", calls[0].Timeout)
	}
}

func TestOpenBadSettings(t *testing.T) {
	d := New("COM1:", Options{Backend: "STDIO:"})
	_, err := d.Open(device.OpenRequest{Param: "12345", Mode: device.Random})
	if !errors.Is(err, ioerr.BadFileName) {
		t.Errorf("Open() error = %v, want BadFileName", err)
	}
}

func TestSocketStream(t *testing.T) {
	dialer := fakenet.NewDialer()
	peers := dialer.Serve("bbs:23")
	d := New("COM1:", Options{Backend: "SOCKET:bbs:23", Dialer: dialer, BufferSize: 64})

	h, err := d.Open(device.OpenRequest{Number: 1, Param: "9600,N,8,1", Mode: device.Random, RecLen: 8})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	peer := <-peers

	if _, err := d.Open(device.OpenRequest{Number: 2, Mode: device.Random}); !errors.Is(err, ioerr.FileAlreadyOpen) {
		t.Errorf("second Open() error = %v, want FileAlreadyOpen", err)
	}
	if got := h.(*File).Settings().Speed; got != 9600 {
		t.Errorf("Settings().Speed = %d, want 9600", got)
	}

	sio, ok := h.Stream()
	if !ok {
		t.Fatal("Stream() ok = false")
	}
	if _, ok := h.Records(); ok {
		t.Error("Records() ok = true for a stream device")
	}
	copy(h.Field().Bytes(), "ATDT5551")

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 4)
		io.ReadFull(peer, buf)
		received <- string(buf)
	}()
	if err := sio.Put(4); err != nil {
		t.Fatalf("Put(4) error = %v", err)
	}
	if got := <-received; got != "ATDT" {
		t.Errorf("peer received %q, want ATDT", got)
	}

	go func() {
		peer.Write([]byte("CONNECT"))
	}()
	got, err := h.Input(7)
	if err != nil || string(got) != "CONNECT" {
		t.Errorf("Input(7) = %q, %v; want CONNECT", got, err)
	}
	if lof, _ := h.LOF(); lof != 64 {
		t.Errorf("LOF() = %d, want 64", lof)
	}

	peer.Close()
	if err := sio.Get(8); err != nil {
		t.Fatalf("Get() after hangup error = %v", err)
	}
	if !bytes.Equal(h.Field().Bytes(), make([]byte, 8)) {
		t.Errorf("field after hangup = %q, want zeros", h.Field().Bytes())
	}
	if eof, _ := h.EOF(); !eof {
		t.Error("EOF() = false after hangup")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := d.Open(device.OpenRequest{Number: 1, Mode: device.Random}); err != nil {
		t.Errorf("Open() after Close error = %v", err)
	}
	d.Close()
}

func TestStdioStream(t *testing.T) {
	var out bytes.Buffer
	d := New("COM1:", Options{Backend: "STDIO:", Stdin: strings.NewReader("OK"), Stdout: &out})

	h, err := d.Open(device.OpenRequest{Number: 1, Mode: device.Random})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if err := h.WriteLine("AT"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "AT\r\n" {
		t.Errorf("stdout = %q, want AT\\r\\n", out.String())
	}
	got, err := h.Input(3)
	if string(got) != "OK" || !errors.Is(err, ioerr.InputPastEnd) {
		t.Errorf("Input(3) = %q, %v; want OK, InputPastEnd", got, err)
	}
	if eof, _ := h.EOF(); !eof {
		t.Error("EOF() = false after input ended")
	}
	if rl := h.Field().Len(); rl != 128 {
		t.Errorf("field length = %d, want default 128", rl)
	}
}
