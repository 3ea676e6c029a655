package serial

import (
	"strconv"
	"strings"
	"time"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

// LineSettings are the communication parameters of an OPEN "COMn:" spec,
// e.g. "COM1:9600,N,8,1,RS,CS,DS,CD". The byte streams behind the ports do
// not model a UART, so the settings are validated and kept for inspection.
type LineSettings struct {
	Speed    int
	Parity   byte
	DataBits int
	StopBits int
	// Flags holds the option words after the stop bits, e.g. "RS", "CS1000".
	Flags []string
}

var speeds = map[int]bool{
	75: true, 110: true, 150: true, 300: true, 600: true, 1200: true,
	1800: true, 2400: true, 4800: true, 9600: true, 19200: true,
}

var flagWords = []string{"RS", "CS", "DS", "CD", "LF", "PE", "BIN", "ASC"}

// ParseLineSettings parses the parameter part of a COM file spec. Missing
// fields take the GW-BASIC defaults 300,E,7,1.
func ParseLineSettings(param string) (LineSettings, error) {
	ls := LineSettings{Speed: 300, Parity: 'E', DataBits: 7, StopBits: 1}
	if strings.TrimSpace(param) == "" {
		return ls, nil
	}
	fields := strings.Split(strings.ToUpper(param), ",")
	bad := ioerr.Op("OPEN", ioerr.BadFileName)
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" && i < 4 {
			continue
		}
		var err error
		switch i {
		case 0:
			ls.Speed, err = strconv.Atoi(f)
			if err != nil || !speeds[ls.Speed] {
				return ls, bad
			}
		case 1:
			if len(f) != 1 || !strings.ContainsRune("NEOSM", rune(f[0])) {
				return ls, bad
			}
			ls.Parity = f[0]
		case 2:
			ls.DataBits, err = strconv.Atoi(f)
			if err != nil || ls.DataBits < 4 || ls.DataBits > 8 {
				return ls, bad
			}
		case 3:
			ls.StopBits, err = strconv.Atoi(f)
			if err != nil || (ls.StopBits != 1 && ls.StopBits != 2) {
				return ls, bad
			}
		default:
			if !validFlag(f) {
				return ls, bad
			}
			ls.Flags = append(ls.Flags, f)
		}
	}
	return ls, nil
}

// validFlag accepts an option word, with a millisecond count for the
// CS, DS and CD timeouts.
func validFlag(f string) bool {
	for _, w := range flagWords {
		if f == w {
			return true
		}
		if (w == "CS" || w == "DS" || w == "CD") && strings.HasPrefix(f, w) {
			_, err := strconv.Atoi(f[len(w):])
			return err == nil
		}
	}
	return false
}

// CarrierTimeout returns the CD option in milliseconds; zero when absent.
func (ls LineSettings) CarrierTimeout() time.Duration {
	for _, f := range ls.Flags {
		if ms, ok := strings.CutPrefix(f, "CD"); ok && ms != "" {
			n, _ := strconv.Atoi(ms)
			return time.Duration(n) * time.Millisecond
		}
	}
	return 0
}
