// Package codepage converts between DOS codepage bytes, which BASIC
// programs see, and UTF-8 text on the host.
package codepage

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// pages lists the supported DOS codepages by number.
var pages = map[int]*charmap.Charmap{
	437:  charmap.CodePage437,
	850:  charmap.CodePage850,
	852:  charmap.CodePage852,
	855:  charmap.CodePage855,
	858:  charmap.CodePage858,
	860:  charmap.CodePage860,
	862:  charmap.CodePage862,
	863:  charmap.CodePage863,
	865:  charmap.CodePage865,
	866:  charmap.CodePage866,
	1252: charmap.Windows1252,
}

// Codepage is a DOS codepage.
type Codepage struct {
	id int
	cm *charmap.Charmap
}

// Lookup returns the codepage with the given number, such as "437".
func Lookup(name string) (*Codepage, error) {
	id, err := strconv.Atoi(name)
	if err != nil {
		return nil, fmt.Errorf("codepage %q: %w", name, err)
	}
	cm, ok := pages[id]
	if !ok {
		return nil, fmt.Errorf("codepage %d not supported", id)
	}
	return &Codepage{id: id, cm: cm}, nil
}

// Default returns codepage 437.
func Default() *Codepage {
	return &Codepage{id: 437, cm: charmap.CodePage437}
}

// ID returns the codepage number.
func (c *Codepage) ID() int { return c.id }

// ToUTF8 converts codepage bytes to UTF-8.
func (c *Codepage) ToUTF8(b []byte) ([]byte, error) {
	out, _, err := transform.Bytes(c.cm.NewDecoder(), b)
	return out, err
}

// FromUTF8 converts UTF-8 to codepage bytes; unmappable runes become '?'.
func (c *Codepage) FromUTF8(b []byte) ([]byte, error) {
	out, _, err := transform.Bytes(c.encoder(), b)
	return out, err
}

// encoder maps runes the codepage lacks to '?' before encoding. The
// library's own replacement is ^Z, which would end a text file.
func (c *Codepage) encoder() transform.Transformer {
	unknown := runes.Map(func(r rune) rune {
		if _, ok := c.cm.EncodeRune(r); !ok {
			return '?'
		}
		return r
	})
	return transform.Chain(unknown, c.cm.NewEncoder())
}

// Writer returns a writer that accepts codepage bytes and writes UTF-8 to w.
func (c *Codepage) Writer(w io.Writer) io.Writer {
	return transform.NewWriter(w, c.cm.NewDecoder())
}

// Reader returns a reader that reads UTF-8 from r and yields codepage bytes.
func (c *Codepage) Reader(r io.Reader) io.Reader {
	return transform.NewReader(r, c.encoder())
}
