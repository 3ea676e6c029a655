package codepage

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"437", "850", "866", "1252"} {
		cp, err := Lookup(name)
		if err != nil {
			t.Errorf("Lookup(%q) error: %v", name, err)
			continue
		}
		if got := cp.ID(); strconv.Itoa(got) != name {
			t.Errorf("Lookup(%q).ID() = %d", name, got)
		}
	}
	for _, name := range []string{"", "cp437", "9999"} {
		if _, err := Lookup(name); err == nil {
			t.Errorf("Lookup(%q) expected error, got nil", name)
		}
	}
}

func TestDefault(t *testing.T) {
	if got := Default().ID(); got != 437 {
		t.Errorf("Default().ID() = %d, want 437", got)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		page string
		dos  []byte
		utf8 string
	}{
		{"437", []byte{0xC9, 0xCD, 0xBB}, "╔═╗"},
		{"437", []byte("PLAIN ASCII"), "PLAIN ASCII"},
		{"437", []byte{0x82, 0xE1}, "éß"},
		{"850", []byte{0x82}, "é"},
		{"866", []byte{0x80, 0xA0}, "Аа"},
	}
	for _, tt := range tests {
		cp, err := Lookup(tt.page)
		if err != nil {
			t.Fatal(err)
		}
		got, err := cp.ToUTF8(tt.dos)
		if err != nil || string(got) != tt.utf8 {
			t.Errorf("%s ToUTF8(% x) = %q, %v; want %q", tt.page, tt.dos, got, err, tt.utf8)
		}
		back, err := cp.FromUTF8([]byte(tt.utf8))
		if err != nil || !bytes.Equal(back, tt.dos) {
			t.Errorf("%s FromUTF8(%q) = % x, %v; want % x", tt.page, tt.utf8, back, err, tt.dos)
		}
	}
}

func TestFromUTF8Unmappable(t *testing.T) {
	got, err := Default().FromUTF8([]byte("A€B"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "A?B" {
		t.Errorf("FromUTF8(A€B) = %q, want %q", got, "A?B")
	}
}

func TestStreams(t *testing.T) {
	cp := Default()

	var out bytes.Buffer
	w := cp.Writer(&out)
	if _, err := w.Write([]byte{0xC4, 0xC4, 'x'}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "──x" {
		t.Errorf("Writer output = %q, want %q", out.String(), "──x")
	}

	got, err := io.ReadAll(cp.Reader(strings.NewReader("╔€")))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xC9, '?'}) {
		t.Errorf("Reader output = % x, want c9 3f", got)
	}
}
