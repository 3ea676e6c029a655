package disk

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

// Entry is one line of a FILES listing.
type Entry struct {
	Name  string // 8.3 display form, e.g. "PROG    .BAS"
	IsDir bool
}

func (e Entry) String() string {
	if e.IsDir {
		return e.Name + "<DIR>"
	}
	return e.Name + "     "
}

// dosForm returns the upper-case name split at its first dot and cut to
// 8.3, or ok=false for names FILES hides.
func dosForm(name string) (base, ext string, ok bool) {
	if name == "" || strings.HasPrefix(name, ".") {
		return "", "", false
	}
	base, ext, _ = strings.Cut(strings.ToUpper(name), ".")
	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return base, ext, true
}

// maskPattern turns a DOS wildcard mask into a doublestar pattern over
// "BASE.EXT" names. A mask without a dot only matches names without an
// extension, as in DOS.
func maskPattern(mask string) string {
	mask = strings.ToUpper(mask)
	if !strings.Contains(mask, ".") {
		mask += "."
	}
	var b strings.Builder
	for _, r := range mask {
		if strings.ContainsRune(`[]{}\`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Files lists the entries matching mask, which may carry a directory part
// and DOS wildcards in its last element. An empty mask lists the current
// directory. It returns the directory shown in the listing header.
func (d *Device) Files(mask string) (string, []Entry, error) {
	dir, pattern := "", mask
	if i := strings.LastIndexAny(mask, `\/`); i >= 0 {
		dir, pattern = mask[:i+1], mask[i+1:]
	}
	if pattern == "" {
		pattern = "*.*"
	}
	r, err := d.resolve(dir)
	if err != nil {
		return "", nil, err
	}
	if !r.exists || !r.info.IsDir() {
		return "", nil, ioerr.Op("FILES", ioerr.PathNotFound)
	}
	infos, err := d.fs.ReadDir(r.native)
	if err != nil {
		return "", nil, hostError("FILES", err, ioerr.PathNotFound)
	}
	pat := maskPattern(pattern)
	if !doublestar.ValidatePattern(pat) {
		return "", nil, ioerr.Op("FILES", ioerr.BadFileName)
	}

	var entries []Entry
	for _, info := range infos {
		base, ext, ok := dosForm(info.Name())
		if !ok {
			continue
		}
		matched, err := doublestar.Match(pat, base+"."+ext)
		if err != nil || !matched {
			continue
		}
		entries = append(entries, Entry{
			Name:  padRight(base, 8) + "." + padRight(ext, 3),
			IsDir: info.IsDir(),
		})
	}
	if len(entries) == 0 {
		return "", nil, ioerr.Op("FILES", ioerr.FileNotFound)
	}
	header := d.Name() + `\` + strings.ToUpper(strings.Join(r.elems, `\`))
	return header, entries, nil
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
